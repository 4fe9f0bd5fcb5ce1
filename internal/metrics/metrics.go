// Package metrics exports history activity as Prometheus metrics.
//
// A Collector subscribes to a notify.Notifier and keeps, per history key,
// a counter of changes by type and gauges for the ledger length and
// cursor position.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/rewind/internal/notify"
)

// Default metric name parts.
const (
	DefaultNamespace = "rewind"
	DefaultSubsystem = "history"
)

// Collector holds the history metrics.
type Collector struct {
	changes *prometheus.CounterVec
	length  *prometheus.GaugeVec
	cursor  *prometheus.GaugeVec

	registerer prometheus.Registerer

	mu   sync.Mutex
	subs []*notify.Subscription
}

// New creates the history metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: DefaultNamespace,
				Subsystem: DefaultSubsystem,
				Name:      "changes_total",
				Help:      "Ledger changes by history key and change type.",
			},
			[]string{"key", "type"},
		),
		length: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: DefaultNamespace,
				Subsystem: DefaultSubsystem,
				Name:      "snapshots",
				Help:      "Number of snapshots held by a ledger.",
			},
			[]string{"key"},
		),
		cursor: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: DefaultNamespace,
				Subsystem: DefaultSubsystem,
				Name:      "cursor",
				Help:      "Cursor position of a ledger, -1 at the baseline.",
			},
			[]string{"key"},
		),
		registerer: reg,
	}

	var registered []prometheus.Collector
	for _, col := range []prometheus.Collector{c.changes, c.length, c.cursor} {
		if err := reg.Register(col); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, col)
	}
	return c, nil
}

// Attach starts recording the changes delivered by n.
func (c *Collector) Attach(n *notify.Notifier) {
	sub := n.Subscribe(c.Observe)

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Observe records one change.
func (c *Collector) Observe(change notify.Change) {
	c.changes.WithLabelValues(change.Key, change.Type.String()).Inc()

	if change.Type == notify.ChangeRemoved {
		c.length.DeleteLabelValues(change.Key)
		c.cursor.DeleteLabelValues(change.Key)
		return
	}
	c.length.WithLabelValues(change.Key).Set(float64(change.Length))
	c.cursor.WithLabelValues(change.Key).Set(float64(change.Cursor))
}

// Close detaches from every notifier and unregisters the metrics.
func (c *Collector) Close() error {
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	if !c.unregister() {
		return errors.New("metrics: collectors were not registered")
	}
	return nil
}

func (c *Collector) unregister() bool {
	ok := true
	for _, col := range []prometheus.Collector{c.changes, c.length, c.cursor} {
		ok = c.registerer.Unregister(col) && ok
	}
	return ok
}
