package vm

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/simlegate/onstomp/stomp"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix. Default: "onstomp".
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithClientName adds a client="<name>" label to every metric.
func WithClientName(name string) Option {
	return func(c *Collector) {
		c.clientName = name
	}
}

// WithMetricsSet registers metrics on set instead of a new globally
// registered set. The caller is responsible for exposing it.
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// Collector implements stomp.Metrics using VictoriaMetrics.
type Collector struct {
	set        *metrics.Set
	prefix     string
	clientName string

	framesBuffered          *metrics.Counter
	framesConfirmed         *metrics.Counter
	transactionsConfirmed   *metrics.Counter
	subscriptionsDebuffered *metrics.Counter
	framesReplayed          *metrics.Counter
	replayErrors            *metrics.Counter
	pendingFrames           atomic.Int64
}

var _ stomp.Metrics = (*Collector)(nil)

// New creates a collector with all metrics pre-created.
func New(opts ...Option) *Collector {
	c := &Collector{prefix: "onstomp"}
	for _, opt := range opts {
		opt(c)
	}

	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()
	return c
}

func (c *Collector) name(metric string) string {
	if c.clientName == "" {
		return fmt.Sprintf("%s_%s", c.prefix, metric)
	}
	return fmt.Sprintf(`%s_%s{client=%q}`, c.prefix, metric, c.clientName)
}

func (c *Collector) initMetrics() {
	c.framesBuffered = c.set.NewCounter(c.name("frames_buffered_total"))
	c.framesConfirmed = c.set.NewCounter(c.name("frames_confirmed_total"))
	c.transactionsConfirmed = c.set.NewCounter(c.name("transactions_confirmed_total"))
	c.subscriptionsDebuffered = c.set.NewCounter(c.name("subscriptions_debuffered_total"))
	c.framesReplayed = c.set.NewCounter(c.name("frames_replayed_total"))
	c.replayErrors = c.set.NewCounter(c.name("replay_errors_total"))
	c.set.NewGauge(c.name("pending_frames"), func() float64 {
		return float64(c.pendingFrames.Load())
	})
}

func (c *Collector) IncFramesBuffered() { c.framesBuffered.Inc() }

func (c *Collector) IncFramesConfirmed() { c.framesConfirmed.Inc() }

func (c *Collector) IncTransactionsConfirmed() { c.transactionsConfirmed.Inc() }

func (c *Collector) IncSubscriptionsDebuffered() { c.subscriptionsDebuffered.Inc() }

func (c *Collector) IncFramesReplayed() { c.framesReplayed.Inc() }

func (c *Collector) IncReplayErrors() { c.replayErrors.Inc() }

func (c *Collector) SetPendingFrames(count int) { c.pendingFrames.Store(int64(count)) }

// WritePrometheus writes the collector's metrics in Prometheus text format.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}
