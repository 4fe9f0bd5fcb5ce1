// Package demo wires a store, a history registry and its optional
// collaborators into an interactive session.
//
// The demo state holds a counter, localized texts and a list of entities.
// Each part is recorded under its own history key through a path codec,
// so undoing one key leaves the others untouched.
package demo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/rewind/internal/config"
	"github.com/dshills/rewind/internal/metrics"
	"github.com/dshills/rewind/internal/multihistory"
	"github.com/dshills/rewind/internal/notify"
	"github.com/dshills/rewind/internal/script"
	"github.com/dshills/rewind/internal/store"
	"github.com/dshills/rewind/internal/transform"
)

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithRegisterer exports history metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *sessionOptions) {
		o.registerer = reg
	}
}

// Session is a running demo. It is not safe for concurrent use.
type Session struct {
	cfg      *config.Config
	store    *store.Store[State]
	registry *multihistory.Registry[State]
	codec    *transform.PathCodec[State]
	notifier *notify.Notifier
	hooks    *script.Hooks
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewSession builds a bound session from cfg.
func NewSession(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		cfg:      cfg.Clone(),
		notifier: notify.New(),
		logger:   o.logger.With("component", "demo"),
	}

	paths := make(map[string]string, len(cfg.Keys))
	for _, key := range cfg.Keys {
		paths[key] = DefaultPath(key)
	}
	maps.Copy(paths, cfg.Paths)
	s.codec = transform.NewPathCodec[State](paths)

	s.store = store.New(InitialState(), store.WithLogger(o.logger))
	handlers := map[string]store.Handler[State]{
		MutAdd:    addHandler(1),
		MutSub:    addHandler(-1),
		MutText:   textHandler,
		MutEntity: entityHandler,
		MutRename: renameHandler,
	}
	for typ, h := range handlers {
		if err := s.store.Handle(typ, h); err != nil {
			return nil, err
		}
	}

	hopts := multihistory.Options[State]{
		Capacity:    cfg.Capacity,
		Keys:        cfg.Keys,
		Filter:      multihistory.AcceptAll,
		Resolve:     Resolve(cfg.Keys[0]),
		Serialize:   s.codec.Serialize,
		Deserialize: s.codec.Deserialize,
		Debug:       cfg.Debug,
		Logger:      o.logger.With("component", "history"),
		Notifier:    s.notifier,
	}

	if cfg.Script != "" {
		hooks, err := script.LoadFile(cfg.Script, script.WithLogger(o.logger))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("loading script: %w", err)
		}
		s.hooks = hooks
		script.Install(hooks, &hopts)
	}

	if o.registerer != nil {
		c, err := metrics.New(o.registerer)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		c.Attach(s.notifier)
		s.metrics = c
	}

	reg, err := multihistory.New(hopts)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := reg.Bind(s.store); err != nil {
		s.Close()
		return nil, err
	}
	s.registry = reg

	s.logger.Debug("session started", "keys", cfg.Keys, "capacity", cfg.Capacity)
	return s, nil
}

// Store returns the session store.
func (s *Session) Store() *store.Store[State] { return s.store }

// Registry returns the session history registry.
func (s *Session) Registry() *multihistory.Registry[State] { return s.registry }

// Notifier returns the notifier receiving every history change.
func (s *Session) Notifier() *notify.Notifier { return s.notifier }

// State returns the current state.
func (s *Session) State() State { return s.store.State() }

// Commit runs a mutation against the store. The state changes even when
// recording fails; the recording error is returned.
func (s *Session) Commit(typ string, payload any) error {
	return s.store.Commit(typ, payload)
}

// Track starts recording key, using its default path unless one is
// configured.
func (s *Session) Track(key string) error {
	if _, ok := s.codec.Path(key); !ok {
		s.codec.SetPath(key, DefaultPath(key))
	}
	_, err := s.registry.AddHistory(key)
	return err
}

// Untrack stops recording key.
func (s *Session) Untrack(key string) bool {
	_, ok := s.registry.RemoveHistory(key)
	return ok
}

// Apply updates the settings that can change while running: capacity and
// debug logging. Other fields are ignored.
func (s *Session) Apply(cfg *config.Config) error {
	if err := s.registry.SetCapacity(cfg.Capacity); err != nil {
		return err
	}
	s.registry.SetDebug(cfg.Debug)
	s.cfg.Capacity = cfg.Capacity
	s.cfg.Debug = cfg.Debug
	s.logger.Info("settings applied", "capacity", cfg.Capacity, "debug", cfg.Debug)
	return nil
}

// Close releases the registry binding, the script and the metrics.
func (s *Session) Close() error {
	var errs []error
	if s.registry != nil {
		s.registry.Close()
	}
	if s.hooks != nil {
		s.hooks.Close()
		s.hooks = nil
	}
	if s.metrics != nil {
		errs = append(errs, s.metrics.Close())
		s.metrics = nil
	}
	s.notifier.Close()
	return errors.Join(errs...)
}
