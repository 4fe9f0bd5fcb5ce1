package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// ChangeHandler receives a reloaded and validated config, or the error
// that prevented it. It runs on the watcher's goroutine.
type ChangeHandler func(cfg *Config, err error)

// Watcher reloads a config file whenever it is written.
//
// The directory holding the file is watched rather than the file itself,
// so editors that save by renaming a temporary file are picked up too.
type Watcher struct {
	path      string
	envPrefix string
	handler   ChangeHandler

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithEnvPrefix re-applies environment overrides after every reload.
func WithEnvPrefix(prefix string) WatcherOption {
	return func(w *Watcher) {
		w.envPrefix = prefix
	}
}

// NewWatcher starts watching path and calls handler after each change.
func NewWatcher(path string, handler ChangeHandler, opts ...WatcherOption) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("config watcher: handler cannot be nil")
	}
	if _, err := FormatOf(path); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", absPath, err)
	}

	w := &Watcher{
		path:    absPath,
		handler: handler,
		fsw:     fsw,
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.handler(nil, fmt.Errorf("watching %s: %w", w.path, err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.handler(nil, err)
		return
	}
	if w.envPrefix != "" {
		if err := cfg.ApplyEnv(w.envPrefix); err != nil {
			w.handler(nil, err)
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		w.handler(nil, err)
		return
	}
	w.handler(cfg, nil)
}
