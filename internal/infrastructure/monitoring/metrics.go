package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	RetriesTotal     *prometheus.CounterVec

	// Queue metrics
	QueueDepth   prometheus.Gauge
	InFlight     prometheus.Gauge
	WaitDuration prometheus.Histogram

	// Circuit metrics
	CircuitState prometheus.Gauge
	CircuitTrips prometheus.Counter

	// Rate-limit metrics
	RateLimitHits   prometheus.Counter
	RateLimitActive prometheus.Gauge

	// Cache metrics
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheEntries prometheus.Gauge

	// HTTP metrics for the daemon's own API
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry, so tests can
// construct independent instances without collisions.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_dispatch_total",
				Help: "Upstream dispatch attempts by outcome",
			},
			[]string{"outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_dispatch_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_retries_total",
				Help: "Retry attempts by error kind",
			},
			[]string{"kind"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_queue_depth",
				Help: "Items awaiting dispatch",
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_in_flight",
				Help: "Dispatches currently in flight (0 or 1)",
			},
		),
		WaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_queue_wait_seconds",
				Help:    "Time from enqueue to dispatch start",
				Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 15, 60},
			},
		),

		CircuitState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_circuit_state",
				Help: "Circuit state (0=closed, 1=half-open, 2=open)",
			},
		),
		CircuitTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_circuit_trips_total",
				Help: "Transitions into the open state",
			},
		),

		RateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_rate_limit_hits_total",
				Help: "Upstream 429 responses observed",
			},
		),
		RateLimitActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_rate_limit_active",
				Help: "Whether an upstream cool-down window is active",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_cache_hits_total",
				Help: "Requests served from cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_cache_misses_total",
				Help: "Requests that went to the queue",
			},
		),
		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_cache_entries",
				Help: "Entries currently stored",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Daemon HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Daemon HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_ws_connections",
				Help: "Active status-stream connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	return m
}

// Handler returns the Prometheus exposition handler for this collector.
func (m *Metrics) Handler() http.Handler {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDispatch records a terminal dispatch outcome
func (m *Metrics) RecordDispatch(outcome string, duration time.Duration) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()
	m.DispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRetry records a scheduled retry
func (m *Metrics) RecordRetry(kind string) {
	m.RetriesTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records a daemon API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetQueueDepth updates the queue depth gauge
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// SetInFlight updates the in-flight gauge
func (m *Metrics) SetInFlight(processing bool) {
	if processing {
		m.InFlight.Set(1)
	} else {
		m.InFlight.Set(0)
	}
}

// SetCircuitState updates the circuit state gauge
func (m *Metrics) SetCircuitState(state int) {
	m.CircuitState.Set(float64(state))
}

// SetRateLimitActive updates the cool-down window gauge
func (m *Metrics) SetRateLimitActive(active bool) {
	if active {
		m.RateLimitActive.Set(1)
	} else {
		m.RateLimitActive.Set(0)
	}
}
