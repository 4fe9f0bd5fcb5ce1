// Package multihistory records the mutations of a host store into several
// independent undo/redo ledgers.
//
// A Registry holds one history.Ledger per key. Once bound to a Source it
// receives every committed mutation, asks its FilterFunc whether to record
// it and its ResolveFunc which keys record it, and appends a snapshot to
// each of those ledgers. Undo and redo are driven through the ledgers:
//
//	reg, err := multihistory.New(multihistory.DefaultOptions[State]())
//	if err != nil {
//		return err
//	}
//	if err := reg.Bind(store); err != nil {
//		return err
//	}
//	store.Commit("add", 2)
//	reg.MustLedger().Undo(1)
//
// Stored payloads and restored states are deep copies made through a JSON
// round trip, so state types must be JSON-encodable through exported
// fields. Serialize and Deserialize may project a key onto a part of the
// state; Deserialize receives the live state to splice the part back into.
package multihistory
