// Package history provides the per-key undo/redo timeline.
//
// A Ledger records serialized snapshots of an external state container and
// moves a cursor over them. Key concepts:
//
// # Snapshots
//
// A Snapshot is an immutable record of one recorded state:
//   - ID: issued by the owning ledger, strictly increasing, never reused
//   - Label: the mutation that produced it
//   - Payload: the serialized state, opaque to the ledger
//
// # Cursor
//
// The cursor indexes the active snapshot. A cursor of -1 means the host is
// at the baseline, the state captured before anything was recorded:
//
//	ledger, err := history.NewLedger[State]("default", 50, codec)
//	ledger.Bind(host)
//
//	ledger.Record("add", host.State())
//	ledger.Undo(1) // host is back at the baseline
//	ledger.Redo(1)
//
// Recording while the cursor is behind the newest snapshot discards the
// snapshots after the cursor. Recording past capacity evicts the oldest.
//
// # Selectors
//
// Snapshots are looked up with a Selector, one of ByID, ByIndex or ByRef.
// Invalid selectors never panic; lookups report "not found" and, when debug
// logging is enabled, log the reason.
//
// A Ledger is not safe for concurrent use.
package history
