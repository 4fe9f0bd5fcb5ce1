// Package store provides a small state container that commits named
// mutations and reports each commit to its subscribers.
//
// A Store is the host a multihistory.Registry binds to: it exposes the
// live state, accepts wholesale replacement on undo and redo, and calls
// subscribers synchronously after every successful commit.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dshills/rewind/internal/multihistory"
)

// Sentinel errors for the store.
var (
	// ErrUnknownMutation is returned when no handler is registered for a type.
	ErrUnknownMutation = errors.New("unknown mutation")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// Handler computes the state after a mutation.
type Handler[S any] func(state S, payload any) (S, error)

// Subscriber is called after every committed mutation.
type Subscriber[S any] func(m multihistory.Mutation, state S) error

// SubscriberError wraps an error returned by a subscriber.
type SubscriberError struct {
	// Mutation is the type of the committed mutation.
	Mutation string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber failed after %q: %v", e.Mutation, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger for commit tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Store holds a state value of type S.
//
// A Store is not safe for concurrent use.
type Store[S any] struct {
	state    S
	handlers map[string]Handler[S]
	subs     map[uint64]Subscriber[S]
	nextID   uint64
	logger   *slog.Logger
}

// New creates a store holding initial.
func New[S any](initial S, opts ...Option) *Store[S] {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[S]{
		state:    initial,
		handlers: make(map[string]Handler[S]),
		subs:     make(map[uint64]Subscriber[S]),
		logger:   o.logger.With("component", "store"),
	}
}

// Handle registers the handler for mutations of type typ, replacing any
// previous one.
func (s *Store[S]) Handle(typ string, h Handler[S]) error {
	if h == nil {
		return ErrNilHandler
	}
	s.handlers[typ] = h
	return nil
}

// Mutations returns the registered mutation types in sorted order.
func (s *Store[S]) Mutations() []string {
	types := make([]string, 0, len(s.handlers))
	for typ := range s.handlers {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Commit runs the handler for typ, stores its result and notifies every
// subscriber in subscription order. A handler error leaves the state
// unchanged. Subscriber errors do not stop later subscribers; they are
// joined and returned.
func (s *Store[S]) Commit(typ string, payload any) error {
	h, ok := s.handlers[typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMutation, typ)
	}

	next, err := h(s.state, payload)
	if err != nil {
		return fmt.Errorf("mutation %q: %w", typ, err)
	}
	s.state = next
	s.logger.Debug("mutation committed", "mutation", typ)

	m := multihistory.Mutation{Type: typ, Payload: payload}
	var errs []error
	for _, sub := range s.subscribers() {
		if err := sub(m, s.state); err != nil {
			errs = append(errs, &SubscriberError{Mutation: typ, Err: err})
		}
	}
	return errors.Join(errs...)
}

// State returns the live state.
func (s *Store[S]) State() S {
	return s.state
}

// ReplaceState swaps the entire state without running handlers or
// notifying subscribers.
func (s *Store[S]) ReplaceState(state S) {
	s.state = state
	s.logger.Debug("state replaced")
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[S]) Subscribe(fn func(m multihistory.Mutation, state S) error) func() {
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		delete(s.subs, id)
	}
}

func (s *Store[S]) subscribers() []Subscriber[S] {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Subscriber[S], len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}
