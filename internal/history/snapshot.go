package history

import "fmt"

// Snapshot is one recorded state of a ledger.
//
// Snapshots are values; copying one does not copy its payload. Payloads
// handed out by a ledger must be treated as read-only.
type Snapshot struct {
	id      uint64
	label   string
	payload any
}

// ID returns the ledger-issued identifier. Zero means the snapshot was
// never recorded.
func (s Snapshot) ID() uint64 {
	return s.id
}

// Label returns the name of the mutation that produced the snapshot.
func (s Snapshot) Label() string {
	return s.label
}

// Payload returns the serialized state.
func (s Snapshot) Payload() any {
	return s.payload
}

// IsZero reports whether s is the zero Snapshot.
func (s Snapshot) IsZero() bool {
	return s.id == 0
}

func (s Snapshot) String() string {
	return fmt.Sprintf("#%d %s", s.id, s.label)
}

// Selector identifies a snapshot within a ledger.
// It is implemented by ByID, ByIndex and ByRef only.
type Selector interface {
	selector()
	String() string
}

// ByID selects the snapshot with the given id.
type ByID uint64

// ByIndex selects the snapshot at the given position.
type ByIndex int

// ByRef selects the ledger's copy of a snapshot obtained earlier.
type ByRef struct {
	Snapshot Snapshot
}

func (ByID) selector()    {}
func (ByIndex) selector() {}
func (ByRef) selector()   {}

func (s ByID) String() string    { return fmt.Sprintf("id %d", uint64(s)) }
func (s ByIndex) String() string { return fmt.Sprintf("index %d", int(s)) }
func (s ByRef) String() string   { return fmt.Sprintf("snapshot %d", s.Snapshot.id) }
