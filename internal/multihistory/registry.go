package multihistory

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/dshills/rewind/internal/history"
	"github.com/dshills/rewind/internal/notify"
)

// Source is the host store a Registry records from.
type Source[S any] interface {
	history.Host[S]

	// Subscribe registers fn to run after every committed mutation with
	// the post-mutation state. An error returned by fn is reported to the
	// committer.
	Subscribe(fn func(m Mutation, state S) error) (unsubscribe func())
}

// Registry owns one ledger per history key and records mutations of a
// bound Source into them.
//
// A Registry is not safe for concurrent use.
type Registry[S any] struct {
	opts    Options[S]
	ledgers map[string]*history.Ledger[S]
	logger  *slog.Logger

	source      Source[S]
	unsubscribe func()
}

// New validates opts and creates a ledger for every configured key.
func New[S any](opts Options[S]) (*Registry[S], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Registry[S]{
		opts:    opts,
		ledgers: make(map[string]*history.Ledger[S], len(opts.Keys)),
		logger:  logger,
	}
	r.opts.Keys = slices.Clone(opts.Keys)

	for _, key := range r.opts.Keys {
		l, err := r.newLedger(key)
		if err != nil {
			return nil, err
		}
		r.ledgers[key] = l
	}
	return r, nil
}

// Bind captures every ledger's baseline from src and subscribes to its
// mutations. A registry can be bound once; Close releases the binding.
func (r *Registry[S]) Bind(src Source[S]) error {
	if r.source != nil {
		return ErrAlreadyBound
	}
	if src == nil {
		return fmt.Errorf("bind: %w", history.ErrNotBound)
	}
	if err := r.opts.Validate(); err != nil {
		return err
	}

	for _, key := range r.Keys() {
		if err := r.ledgers[key].Bind(src); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	}

	r.source = src
	r.unsubscribe = src.Subscribe(r.Apply)
	r.logger.Debug("registry bound", "keys", r.Keys())
	return nil
}

// Bound reports whether the registry is subscribed to a source.
func (r *Registry[S]) Bound() bool {
	return r.source != nil
}

// Apply records state under every key the mutation resolves to. It is
// the subscription body installed by Bind and may be called directly by
// hosts that deliver mutations themselves.
//
// Every resolved key is checked and serialized before anything is
// recorded, so an unknown key or a failed serialize leaves all ledgers
// untouched.
func (r *Registry[S]) Apply(m Mutation, state S) error {
	ok, err := r.opts.Filter(m)
	if err != nil {
		return fmt.Errorf("filter %q: %w", m.Type, err)
	}
	if !ok {
		return nil
	}

	keys, err := r.opts.Resolve(m)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", m.Type, err)
	}
	keys = dedupe(keys)

	for _, key := range keys {
		if _, ok := r.ledgers[key]; !ok {
			return &UnknownKeyError{Key: key, Valid: r.Keys()}
		}
	}

	payloads := make([]any, len(keys))
	for i, key := range keys {
		payload, err := r.ledgers[key].Encode(state)
		if err != nil {
			return err
		}
		payloads[i] = payload
	}
	for i, key := range keys {
		r.ledgers[key].Append(m.Type, payloads[i])
	}

	r.logger.Debug("mutation recorded", "mutation", m.Type, "keys", keys)
	return nil
}

// AddHistory registers a ledger for key. When the registry is bound the
// ledger captures its baseline from the live state immediately.
func (r *Registry[S]) AddHistory(key string) (*history.Ledger[S], error) {
	if _, ok := r.ledgers[key]; ok {
		return nil, fmt.Errorf("%q: %w", key, ErrHistoryExists)
	}
	if err := validate.Var(key, "historykey"); err != nil {
		cerr := &ConfigError{}
		cerr.add("key", "cannot be blank")
		return nil, cerr
	}

	l, err := r.newLedger(key)
	if err != nil {
		return nil, err
	}
	if r.source != nil {
		if err := l.Bind(r.source); err != nil {
			return nil, err
		}
	}

	r.ledgers[key] = l
	r.emit(notify.ChangeAdded, key)
	return l, nil
}

// RemoveHistory deregisters the ledger for key and returns it.
func (r *Registry[S]) RemoveHistory(key string) (*history.Ledger[S], bool) {
	l, ok := r.ledgers[key]
	if !ok {
		return nil, false
	}
	delete(r.ledgers, key)
	r.emit(notify.ChangeRemoved, key)
	return l, true
}

// Ledger returns the ledger for key, or for the default key when key is
// omitted or empty.
func (r *Registry[S]) Ledger(key ...string) (*history.Ledger[S], error) {
	k := r.DefaultKey()
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	l, ok := r.ledgers[k]
	if !ok {
		return nil, &UnknownKeyError{Key: k, Valid: r.Keys()}
	}
	return l, nil
}

// MustLedger is like Ledger but panics on an unknown key.
func (r *Registry[S]) MustLedger(key ...string) *history.Ledger[S] {
	l, err := r.Ledger(key...)
	if err != nil {
		panic(err)
	}
	return l
}

// HasHistory reports whether key has a ledger.
func (r *Registry[S]) HasHistory(key string) bool {
	_, ok := r.ledgers[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry[S]) Keys() []string {
	return slices.Sorted(maps.Keys(r.ledgers))
}

// DefaultKey returns the first configured key.
func (r *Registry[S]) DefaultKey() string {
	return r.opts.Keys[0]
}

// Capacity returns the capacity applied to every ledger.
func (r *Registry[S]) Capacity() int {
	return r.opts.Capacity
}

// SetCapacity changes the capacity of every ledger, trimming the oldest
// snapshots where needed.
func (r *Registry[S]) SetCapacity(capacity int) error {
	if capacity < 1 {
		cerr := &ConfigError{}
		cerr.add("capacity", "has to be greater than 0")
		return cerr
	}
	r.opts.Capacity = capacity
	for _, key := range r.Keys() {
		if err := r.ledgers[key].SetCapacity(capacity); err != nil {
			return err
		}
	}
	return nil
}

// SetDebug toggles selector logging on every ledger.
func (r *Registry[S]) SetDebug(debug bool) {
	r.opts.Debug = debug
	for _, l := range r.ledgers {
		l.SetDebug(debug)
	}
}

// SetFilter replaces the mutation filter.
func (r *Registry[S]) SetFilter(fn FilterFunc) error {
	if fn == nil {
		cerr := &ConfigError{}
		cerr.add("filter", "has to be a function")
		return cerr
	}
	r.opts.Filter = fn
	return nil
}

// SetResolve replaces the key resolver.
func (r *Registry[S]) SetResolve(fn ResolveFunc) error {
	if fn == nil {
		cerr := &ConfigError{}
		cerr.add("resolve", "has to be a function")
		return cerr
	}
	r.opts.Resolve = fn
	return nil
}

// Close unsubscribes from the bound source. Ledgers stay usable for
// undo and redo. It is safe to call Close more than once.
func (r *Registry[S]) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.source = nil
}

func (r *Registry[S]) newLedger(key string) (*history.Ledger[S], error) {
	return history.NewLedger[S](key, r.opts.Capacity, codec[S]{r: r},
		history.WithLogger(r.logger),
		history.WithDebug(r.opts.Debug),
		history.WithNotifier(r.opts.Notifier),
	)
}

func (r *Registry[S]) emit(typ notify.ChangeType, key string) {
	if r.opts.Notifier == nil {
		return
	}
	change := notify.Change{Key: key, Type: typ, Cursor: -1}
	if l, ok := r.ledgers[key]; ok {
		change.Cursor = l.Cursor()
		change.Length = l.Len()
	}
	r.opts.Notifier.Notify(change)
}

// dedupe drops repeated keys, keeping the first occurrence.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
