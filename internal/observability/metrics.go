package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/utils/clock"

	"github.com/rotationalio/oscar/internal/state"
)

// DefaultNamespace is used when no metrics namespace is configured.
const DefaultNamespace = "oscar"

// Metrics holds the Prometheus metrics of the request pipeline.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec
	UnhandledFailures     *prometheus.CounterVec
}

// NewMetrics creates the request metrics and registers them with reg.
// It panics if the metrics are already registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		HTTPResponseSizeBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		UnhandledFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_unhandled_failures_total",
				Help:      "Total number of requests that failed with an unhandled panic",
			},
			[]string{"method", "path"},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics. path should be the route
// template rather than the raw URL to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int) {
	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	if responseSize > 0 {
		m.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordUnhandledFailure counts a request that panicked.
func (m *Metrics) RecordUnhandledFailure(method, path string) {
	m.UnhandledFailures.WithLabelValues(method, path).Inc()
}

// HTTPInFlightInc increments the in-flight request gauge.
func (m *Metrics) HTTPInFlightInc() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTPInFlightDec decrements the in-flight request gauge.
func (m *Metrics) HTTPInFlightDec() {
	m.HTTPRequestsInFlight.Dec()
}

// StateReader provides consistent snapshots of the service state.
type StateReader interface {
	Snapshot() state.Snapshot
}

// stateCollector exports the service state and uptime at scrape time.
type stateCollector struct {
	reader StateReader
	clock  clock.PassiveClock
	state  *prometheus.Desc
	uptime *prometheus.Desc
}

// NewStateCollector returns a collector exposing <namespace>_service_state
// (1 for the current state, 0 for the others) and
// <namespace>_service_uptime_seconds, read from a single snapshot per scrape.
func NewStateCollector(namespace string, reader StateReader, clk clock.PassiveClock) prometheus.Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &stateCollector{
		reader: reader,
		clock:  clk,
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "service", "state"),
			"Current operational state of the service",
			[]string{"state"}, nil,
		),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "service", "uptime_seconds"),
			"Seconds since the service last started",
			nil, nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.uptime
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.reader.Snapshot()

	for _, s := range state.States() {
		value := 0.0
		if s == snap.State {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, value, s.String())
	}

	if uptime, ok := snap.Uptime(c.clock.Now()); ok {
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, uptime.Seconds())
	}
}
