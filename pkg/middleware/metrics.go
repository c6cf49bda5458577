package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/cellgraph/pkg/reactive"
)

// MetricsConfig configures the Prometheus instrument.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "cellgraph").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus instrument.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "cellgraph",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a reactive.Instrument backed by Prometheus collectors. It also
// records live feed activity (see pkg/live).
type Metrics struct {
	flushesTotal     *prometheus.CounterVec
	dispatchedTotal  prometheus.Counter
	flushDuration    prometheus.Histogram
	queueDepth       prometheus.Gauge
	observerFailures *prometheus.CounterVec
	cycleBreaks      prometheus.Counter

	liveClients    prometheus.Gauge
	opsSent        prometheus.Counter
	liveWriteFails prometheus.Counter
}

var _ reactive.Instrument = (*Metrics)(nil)

// Prometheus creates an instrument that exports scheduler metrics.
//
// Metrics collected:
//   - cellgraph_flushes_total: flushes by outcome (ok, cycle)
//   - cellgraph_dispatched_total: items dispatched by flushes
//   - cellgraph_flush_duration_seconds: flush duration histogram
//   - cellgraph_flush_queue_depth: size of the most recent batch
//   - cellgraph_observer_failures_total: isolated failures by kind (panic, error)
//   - cellgraph_cycle_breaks_total: flushes stopped by the cycle breaker
//   - cellgraph_live_clients: connected live feed clients
//   - cellgraph_live_ops_sent_total: reconcile ops broadcast to clients
//   - cellgraph_live_write_failures_total: failed websocket writes
//
// Collectors are registered with the configured registry, so Prometheus must
// be called once per registry.
//
// Example:
//
//	m := middleware.Prometheus(middleware.WithNamespace("myapp"))
//	s := reactive.NewScheduler(reactive.WithInstrument(m))
//
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		flushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of scheduler flushes",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		dispatchedTotal: counter("dispatched_total", "Total number of items dispatched by flushes"),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		queueDepth: gauge("flush_queue_depth", "Number of items in the most recent flush batch"),

		observerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observer_failures_total",
			Help:        "Total number of isolated observer failures",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		cycleBreaks: counter("cycle_breaks_total", "Total number of flushes stopped by the cycle breaker"),

		liveClients:    gauge("live_clients", "Number of connected live feed clients"),
		opsSent:        counter("live_ops_sent_total", "Total number of reconcile ops broadcast to live clients"),
		liveWriteFails: counter("live_write_failures_total", "Total number of failed live feed writes"),
	}
}

// FlushStarted implements reactive.Instrument.
func (m *Metrics) FlushStarted(queued int) reactive.FlushDone {
	start := time.Now()
	m.queueDepth.Set(float64(queued))
	return func(dispatched int, err error) {
		m.flushDuration.Observe(time.Since(start).Seconds())
		m.dispatchedTotal.Add(float64(dispatched))
		outcome := "ok"
		if errors.Is(err, reactive.ErrCyclicScheduling) {
			outcome = "cycle"
			m.cycleBreaks.Inc()
		}
		m.flushesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserverFailed implements reactive.Instrument.
func (m *Metrics) ObserverFailed(err error) {
	m.observerFailures.WithLabelValues(failureKind(err)).Inc()
}

// failureKind keeps the label set small.
func failureKind(err error) string {
	if errors.Is(err, reactive.ErrObserverPanic) {
		return "panic"
	}
	return "error"
}

// ClientConnected records a live feed client joining.
func (m *Metrics) ClientConnected() { m.liveClients.Inc() }

// ClientDisconnected records a live feed client leaving.
func (m *Metrics) ClientDisconnected() { m.liveClients.Dec() }

// OpsSent records n reconcile ops broadcast to clients.
func (m *Metrics) OpsSent(n int) { m.opsSent.Add(float64(n)) }

// WriteFailed records a failed websocket write.
func (m *Metrics) WriteFailed() { m.liveWriteFails.Inc() }
