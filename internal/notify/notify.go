// Package notify provides change notification for history ledgers.
//
// The notify package implements an observer pattern that lets a UI or a
// metrics exporter follow ledger changes without the ledgers knowing about
// them. Delivery is synchronous: observers run in the goroutine that made
// the change, after the change is complete.
package notify

import (
	"sort"
	"sync"
)

// ChangeType represents the type of ledger change.
type ChangeType int

const (
	// ChangeRecord indicates a snapshot was recorded.
	ChangeRecord ChangeType = iota

	// ChangeUndo indicates the cursor moved back.
	ChangeUndo

	// ChangeRedo indicates the cursor moved forward.
	ChangeRedo

	// ChangeClear indicates all snapshots were dropped.
	ChangeClear

	// ChangeReset indicates all snapshots were dropped and the baseline restored.
	ChangeReset

	// ChangeRemove indicates a single snapshot was removed.
	ChangeRemove

	// ChangeUpdate indicates a snapshot was replaced in place.
	ChangeUpdate

	// ChangeBaseline indicates the baseline was captured or overridden.
	ChangeBaseline

	// ChangeCapacity indicates the ledger capacity changed.
	ChangeCapacity

	// ChangeAdded indicates a history key was registered.
	ChangeAdded

	// ChangeRemoved indicates a history key was deregistered.
	ChangeRemoved
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeRecord:
		return "record"
	case ChangeUndo:
		return "undo"
	case ChangeRedo:
		return "redo"
	case ChangeClear:
		return "clear"
	case ChangeReset:
		return "reset"
	case ChangeRemove:
		return "remove"
	case ChangeUpdate:
		return "update"
	case ChangeBaseline:
		return "baseline"
	case ChangeCapacity:
		return "capacity"
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change represents a ledger change event.
type Change struct {
	// Key is the history key of the ledger that changed.
	Key string

	// Type is the type of change.
	Type ChangeType

	// Label and SnapshotID describe the snapshot involved, if any.
	Label      string
	SnapshotID uint64

	// Cursor and Length are the ledger position after the change.
	Cursor int
	Length int
}

// Observer is called when a ledger changes.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	key      string
	notifier *Notifier
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Key returns the history key the subscription is scoped to, empty for
// global subscriptions.
func (s *Subscription) Key() string {
	return s.key
}

// Notifier manages change subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Global observers that receive all changes
	globalObservers map[uint64]Observer

	// Key-specific observers
	keyObservers map[string]map[uint64]Observer

	// Next subscription ID
	nextID uint64

	// Closed flag for idempotent Close
	closed bool
}

// New creates a new Notifier.
func New() *Notifier {
	return &Notifier{
		globalObservers: make(map[uint64]Observer),
		keyObservers:    make(map[string]map[uint64]Observer),
	}
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.globalObservers[id] = observer

	return &Subscription{id: id, notifier: n}
}

// SubscribeKey registers an observer for changes to one history key.
func (n *Notifier) SubscribeKey(key string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.keyObservers[key] == nil {
		n.keyObservers[key] = make(map[uint64]Observer)
	}
	n.keyObservers[key][id] = observer

	return &Subscription{id: id, key: key, notifier: n}
}

// Notify delivers a change to all matching observers, global observers
// first, each group in subscription order.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	observers := collect(n.globalObservers)
	observers = append(observers, collect(n.keyObservers[change.Key])...)
	n.mu.RUnlock()

	// Call observers outside the lock
	for _, obs := range observers {
		obs(change)
	}
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	total := len(n.globalObservers)
	for _, obs := range n.keyObservers {
		total += len(obs)
	}
	return total
}

// Close drops all subscriptions; later notifications are discarded.
// It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	clear(n.globalObservers)
	clear(n.keyObservers)
}

// unsubscribe removes an observer by ID.
func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.globalObservers, id)

	for key, observers := range n.keyObservers {
		delete(observers, id)
		if len(observers) == 0 {
			delete(n.keyObservers, key)
		}
	}
}

func collect(m map[uint64]Observer) []Observer {
	if len(m) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
