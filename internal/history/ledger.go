package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/dshills/rewind/internal/notify"
)

// ErrNoBaseline is returned by InitialState before any baseline was captured.
var ErrNoBaseline = errors.New("ledger has no baseline")

// Codec translates between live state and stored payloads.
type Codec[S any] interface {
	// Serialize turns state into the payload stored for key.
	Serialize(key string, state S) (any, error)

	// Deserialize turns a stored payload back into a full state.
	// current is the host's live state at the time of the restore.
	Deserialize(key string, payload any, current S) (S, error)
}

// Host is the live state container a ledger restores into.
type Host[S any] interface {
	State() S
	ReplaceState(state S)
}

// Option configures a Ledger.
type Option func(*ledgerConfig)

type ledgerConfig struct {
	logger   *slog.Logger
	debug    bool
	notifier *notify.Notifier
}

// WithLogger sets the logger used for debug reports.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ledgerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables logging of rejected selectors.
func WithDebug(debug bool) Option {
	return func(c *ledgerConfig) {
		c.debug = debug
	}
}

// WithNotifier sets the notifier that receives change events.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *ledgerConfig) {
		c.notifier = n
	}
}

// Ledger is the bounded undo/redo timeline of one history key.
//
// A Ledger is not safe for concurrent use.
type Ledger[S any] struct {
	key      string
	capacity int
	codec    Codec[S]
	host     Host[S]

	snapshots   []Snapshot
	cursor      int
	baseline    any
	initialized bool
	idCounter   uint64

	logger   *slog.Logger
	debug    bool
	notifier *notify.Notifier
}

// NewLedger creates an empty ledger positioned at the baseline.
func NewLedger[S any](key string, capacity int, codec Codec[S], opts ...Option) (*Ledger[S], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("history %q: %w", key, ErrInvalidCapacity)
	}
	if codec == nil {
		return nil, fmt.Errorf("history %q: codec is required", key)
	}

	cfg := ledgerConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Ledger[S]{
		key:      key,
		capacity: capacity,
		codec:    codec,
		cursor:   -1,
		logger:   cfg.logger.With("history", key),
		debug:    cfg.debug,
		notifier: cfg.notifier,
	}, nil
}

// Key returns the history key this ledger records.
func (l *Ledger[S]) Key() string {
	return l.key
}

// Len returns the number of recorded snapshots.
func (l *Ledger[S]) Len() int {
	return len(l.snapshots)
}

// Cursor returns the index of the active snapshot, -1 at the baseline.
func (l *Ledger[S]) Cursor() int {
	return l.cursor
}

// IDCount returns the last issued snapshot id.
func (l *Ledger[S]) IDCount() uint64 {
	return l.idCounter
}

// Capacity returns the maximum number of retained snapshots.
func (l *Ledger[S]) Capacity() int {
	return l.capacity
}

// Initialized reports whether a baseline has been captured.
func (l *Ledger[S]) Initialized() bool {
	return l.initialized
}

// Bound reports whether a host is attached.
func (l *Ledger[S]) Bound() bool {
	return l.host != nil
}

// SetDebug toggles logging of rejected selectors.
func (l *Ledger[S]) SetDebug(debug bool) {
	l.debug = debug
}

// Bind attaches the host that undo and redo restore into and captures the
// baseline from its current state unless one is already set.
func (l *Ledger[S]) Bind(host Host[S]) error {
	if host == nil {
		return fmt.Errorf("history %q: %w", l.key, ErrNotBound)
	}
	l.host = host
	return l.Init(host.State())
}

// Init captures the baseline from state. Only the first call has an
// effect; use OverrideInitialState or ClearHistory(true) to replace it.
func (l *Ledger[S]) Init(state S) error {
	if l.initialized {
		return nil
	}
	return l.OverrideInitialState(state)
}

// OverrideInitialState replaces the baseline without touching the recorded
// snapshots or the cursor.
func (l *Ledger[S]) OverrideInitialState(state S) error {
	payload, err := l.serialize(state)
	if err != nil {
		return err
	}
	l.baseline = payload
	l.initialized = true
	l.emit(notify.ChangeBaseline, Snapshot{})
	return nil
}

// InitialState returns the baseline deserialized against the live state.
func (l *Ledger[S]) InitialState() (S, error) {
	var zero S
	if !l.initialized {
		return zero, fmt.Errorf("history %q: %w", l.key, ErrNoBaseline)
	}
	current := zero
	if l.host != nil {
		current = l.host.State()
	}
	state, err := l.codec.Deserialize(l.key, l.baseline, current)
	if err != nil {
		return zero, fmt.Errorf("history %q: deserialize baseline: %w", l.key, err)
	}
	return state, nil
}

// Record serializes state and appends it after the cursor. Snapshots after
// the cursor are discarded first, and the oldest snapshot is evicted when
// the ledger is full. The cursor ends on the new snapshot.
func (l *Ledger[S]) Record(label string, state S) (Snapshot, error) {
	payload, err := l.Encode(state)
	if err != nil {
		return Snapshot{}, err
	}
	return l.Append(label, payload), nil
}

// Encode serializes state with the ledger's codec without recording it.
func (l *Ledger[S]) Encode(state S) (any, error) {
	return l.serialize(state)
}

// Append records a payload produced by Encode, as Record does.
func (l *Ledger[S]) Append(label string, payload any) Snapshot {
	l.idCounter++
	snap := Snapshot{id: l.idCounter, label: label, payload: payload}

	// A write after undo starts a new branch.
	if next := l.cursor + 1; next < len(l.snapshots) {
		clear(l.snapshots[next:])
		l.snapshots = l.snapshots[:next]
	}

	l.snapshots = append(l.snapshots, snap)

	if excess := len(l.snapshots) - l.capacity; excess > 0 {
		l.snapshots = slices.Delete(l.snapshots, 0, excess)
	}
	l.cursor = len(l.snapshots) - 1

	l.emit(notify.ChangeRecord, snap)
	return snap
}

// Locate resolves sel to an index. Unlike FindIndex it returns the reason a
// selector failed as a *SelectorError.
func (l *Ledger[S]) Locate(sel Selector) (int, error) {
	switch s := sel.(type) {
	case nil:
		return -1, l.selectorError(nil, ErrInvalidSelector, "one of ByID, ByIndex or ByRef is required")
	case ByID:
		if s == 0 {
			return -1, l.selectorError(sel, ErrInvalidSelector, "ids start at 1")
		}
		return l.indexOfID(sel, uint64(s))
	case ByIndex:
		if s < 0 || int(s) >= len(l.snapshots) {
			return -1, l.selectorError(sel, ErrIndexOutOfRange,
				fmt.Sprintf("has to be in [0, %d)", len(l.snapshots)))
		}
		return int(s), nil
	case ByRef:
		if s.Snapshot.IsZero() {
			return -1, l.selectorError(sel, ErrInvalidSelector, "snapshot was never recorded")
		}
		return l.indexOfID(sel, s.Snapshot.id)
	default:
		return -1, l.selectorError(sel, ErrInvalidSelector, fmt.Sprintf("unsupported selector %T", sel))
	}
}

// FindIndex returns the index of the selected snapshot, or -1.
func (l *Ledger[S]) FindIndex(sel Selector) int {
	i, err := l.Locate(sel)
	if err != nil {
		l.report(err)
		return -1
	}
	return i
}

// Find returns the selected snapshot.
func (l *Ledger[S]) Find(sel Selector) (Snapshot, bool) {
	i := l.FindIndex(sel)
	if i < 0 {
		return Snapshot{}, false
	}
	return l.snapshots[i], true
}

// Remove deletes the selected snapshot. The cursor index is kept, so
// removing a snapshot at or before the cursor shifts what it points at.
// Removing the tail under the cursor clamps it to the new last snapshot.
func (l *Ledger[S]) Remove(sel Selector) (Snapshot, bool) {
	i := l.FindIndex(sel)
	if i < 0 {
		return Snapshot{}, false
	}
	snap := l.snapshots[i]
	l.snapshots = slices.Delete(l.snapshots, i, i+1)
	if l.cursor >= len(l.snapshots) {
		// Keep the cursor inside the slice when the tail was removed.
		l.cursor = len(l.snapshots) - 1
	}
	l.emit(notify.ChangeRemove, snap)
	return snap, true
}

// Update replaces label and payload of the selected snapshot in place,
// keeping its id.
func (l *Ledger[S]) Update(sel Selector, label string, payload any) bool {
	i := l.FindIndex(sel)
	if i < 0 {
		return false
	}
	l.snapshots[i] = Snapshot{id: l.snapshots[i].id, label: label, payload: payload}
	l.emit(notify.ChangeUpdate, l.snapshots[i])
	return true
}

// HasChanges reports whether any snapshot is recorded.
func (l *Ledger[S]) HasChanges() bool {
	return len(l.snapshots) > 0
}

// CanUndo reports whether the cursor can move back by n.
func (l *Ledger[S]) CanUndo(n int) bool {
	return n > 0 && l.cursor-n >= -1
}

// CanRedo reports whether the cursor can move forward by n.
func (l *Ledger[S]) CanRedo(n int) bool {
	return n > 0 && l.cursor+n < len(l.snapshots)
}

// Undo moves the cursor back by n and restores the state found there, the
// baseline when the cursor reaches -1. It does nothing if CanUndo(n) is false.
func (l *Ledger[S]) Undo(n int) error {
	if !l.CanUndo(n) {
		return nil
	}
	target := l.cursor - n
	payload := l.baseline
	if target >= 0 {
		payload = l.snapshots[target].payload
	}
	if err := l.restore(payload); err != nil {
		return err
	}
	l.cursor = target
	l.emit(notify.ChangeUndo, l.currentOrZero())
	return nil
}

// Redo moves the cursor forward by n and restores the state found there.
// It does nothing if CanRedo(n) is false.
func (l *Ledger[S]) Redo(n int) error {
	if !l.CanRedo(n) {
		return nil
	}
	target := l.cursor + n
	if err := l.restore(l.snapshots[target].payload); err != nil {
		return err
	}
	l.cursor = target
	l.emit(notify.ChangeRedo, l.snapshots[target])
	return nil
}

// Goto moves the cursor to the selected snapshot by undoing or redoing the
// distance. Unresolvable selectors and the current position are no-ops.
func (l *Ledger[S]) Goto(sel Selector) error {
	target := l.FindIndex(sel)
	if target < 0 {
		return nil
	}
	switch d := target - l.cursor; {
	case d > 0:
		return l.Redo(d)
	case d < 0:
		return l.Undo(-d)
	default:
		return nil
	}
}

// ClearHistory drops every snapshot and moves the cursor to the baseline.
// With overrideBaseline the baseline is recaptured from the host state.
func (l *Ledger[S]) ClearHistory(overrideBaseline bool) error {
	if overrideBaseline {
		if l.host == nil {
			return fmt.Errorf("history %q: %w", l.key, ErrNotBound)
		}
		payload, err := l.serialize(l.host.State())
		if err != nil {
			return err
		}
		l.baseline = payload
		l.initialized = true
	}
	l.truncate()
	l.emit(notify.ChangeClear, Snapshot{})
	return nil
}

// Reset restores the baseline into the host and drops every snapshot.
// The baseline is kept; a failed restore leaves the ledger untouched.
func (l *Ledger[S]) Reset() error {
	if err := l.restore(l.baseline); err != nil {
		return err
	}
	l.truncate()
	l.emit(notify.ChangeReset, Snapshot{})
	return nil
}

// SetCapacity changes the maximum number of snapshots. If more are
// recorded, the oldest are removed and the cursor follows its snapshot,
// stopping at the baseline.
func (l *Ledger[S]) SetCapacity(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("history %q: %w", l.key, ErrInvalidCapacity)
	}
	l.capacity = capacity
	if excess := len(l.snapshots) - capacity; excess > 0 {
		l.snapshots = slices.Delete(l.snapshots, 0, excess)
		l.cursor = max(l.cursor-excess, -1)
	}
	l.emit(notify.ChangeCapacity, Snapshot{})
	return nil
}

// Snapshots returns a copy of the recorded snapshots, oldest first.
func (l *Ledger[S]) Snapshots() []Snapshot {
	return slices.Clone(l.snapshots)
}

// Current returns the snapshot under the cursor.
func (l *Ledger[S]) Current() (Snapshot, bool) {
	if l.cursor < 0 {
		return Snapshot{}, false
	}
	return l.snapshots[l.cursor], true
}

func (l *Ledger[S]) currentOrZero() Snapshot {
	s, _ := l.Current()
	return s
}

func (l *Ledger[S]) truncate() {
	clear(l.snapshots)
	l.snapshots = l.snapshots[:0]
	l.cursor = -1
}

func (l *Ledger[S]) serialize(state S) (any, error) {
	payload, err := l.codec.Serialize(l.key, state)
	if err != nil {
		return nil, fmt.Errorf("history %q: serialize: %w", l.key, err)
	}
	return payload, nil
}

func (l *Ledger[S]) restore(payload any) error {
	if l.host == nil {
		return fmt.Errorf("history %q: %w", l.key, ErrNotBound)
	}
	state, err := l.codec.Deserialize(l.key, payload, l.host.State())
	if err != nil {
		return fmt.Errorf("history %q: deserialize: %w", l.key, err)
	}
	l.host.ReplaceState(state)
	return nil
}

func (l *Ledger[S]) indexOfID(sel Selector, id uint64) (int, error) {
	for i, snap := range l.snapshots {
		if snap.id == id {
			return i, nil
		}
	}
	return -1, l.selectorError(sel, ErrSnapshotNotFound, "")
}

func (l *Ledger[S]) selectorError(sel Selector, err error, reason string) *SelectorError {
	return &SelectorError{Key: l.key, Selector: sel, Reason: reason, Err: err}
}

// report logs rejected selectors in debug mode. Plain misses are not logged.
func (l *Ledger[S]) report(err error) {
	if !l.debug || errors.Is(err, ErrSnapshotNotFound) {
		return
	}
	l.logger.Warn("snapshot lookup rejected", "error", err)
}

func (l *Ledger[S]) emit(typ notify.ChangeType, snap Snapshot) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(notify.Change{
		Key:        l.key,
		Type:       typ,
		Label:      snap.label,
		SnapshotID: snap.id,
		Cursor:     l.cursor,
		Length:     len(l.snapshots),
	})
}
