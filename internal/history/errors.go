package history

import (
	"errors"
	"fmt"
)

// Common errors for ledger operations.
var (
	// ErrInvalidSelector indicates a selector that can never match.
	ErrInvalidSelector = errors.New("invalid snapshot selector")

	// ErrIndexOutOfRange indicates a ByIndex selector outside [0, Len()).
	ErrIndexOutOfRange = errors.New("snapshot index out of range")

	// ErrSnapshotNotFound indicates a valid selector that matched nothing.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrNotBound indicates a state replacement on a ledger with no host.
	ErrNotBound = errors.New("ledger is not bound to a host")

	// ErrInvalidCapacity indicates a capacity below one.
	ErrInvalidCapacity = errors.New("capacity must be greater than zero")
)

// SelectorError describes why a selector could not be resolved.
type SelectorError struct {
	Key      string   // Ledger key
	Selector Selector // Offending selector, nil if none was given
	Reason   string   // Human readable detail
	Err      error    // ErrInvalidSelector, ErrIndexOutOfRange or ErrSnapshotNotFound
}

func (e *SelectorError) Error() string {
	sel := "<nil>"
	if e.Selector != nil {
		sel = e.Selector.String()
	}
	msg := fmt.Sprintf("history %q: %s: %v", e.Key, sel, e.Err)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}
