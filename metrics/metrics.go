package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyline-io/go-keyline-common/environment"
	"github.com/keyline-io/go-keyline-common/logger"
)

type Logger = logger.Logger

// CacheHitsMetric counts whole-record cache hits by record name.
func CacheHitsMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyline_cache_hits_total",
			Help: "Total number of record cache hits by record.",
		},
		[]string{"record"},
	)
}

// CacheMissesMetric counts whole-record cache misses by record name.
func CacheMissesMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyline_cache_misses_total",
			Help: "Total number of record cache misses by record.",
		},
		[]string{"record"},
	)
}

// PopulateLatencyMetric measures time to produce and persist a record on a
// cache miss. bucket limits are in seconds...
func PopulateLatencyMetric() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyline_cache_populate_latency",
			Help:    "Histogram of time to produce and store a record on miss.",
			Buckets: []float64{.005, .01, .02, .04, .08, .16, .32},
		},
		[]string{"record"},
	)
}

// ClampedIncrementsMetric counts clamped increment operations, partitioned by
// whether the bound was applied.
func ClampedIncrementsMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyline_clamped_increments_total",
			Help: "Total number of clamped increments by record, field and outcome.",
		},
		[]string{"record", "field", "outcome"},
	)
}

// Metrics. Only those metrics specified are returned. The GoCollector and
// ProcessCollector metrics are omitted by using our own registry.
type Metrics struct {
	serviceName string
	port        string
	registry    *prometheus.Registry
	log         Logger
}

type MetricsOption func(*Metrics)

// WithPort sets the port the metrics endpoint is served on, for callers not
// using NewFromEnvironment.
func WithPort(port string) MetricsOption {
	return func(m *Metrics) {
		m.port = port
	}
}

func New(log Logger, serviceName string, opts ...MetricsOption) *Metrics {
	m := Metrics{
		log:         log,
		serviceName: strings.ToLower(serviceName),
		registry:    prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return &m
}

func NewFromEnvironment(log Logger, serviceName string, opts ...MetricsOption) *Metrics {
	useMetrics := environment.GetTruthyOrFatal("USE_METRICS")
	var port string
	if useMetrics {
		port = environment.GetOrFatal("METRICS_PORT")
	}
	var m *Metrics
	if port != "" {
		m = New(
			log,
			serviceName,
			opts...,
		)
		m.port = port
	}
	return m
}

func (m *Metrics) String() string {
	return m.serviceName
}

func (m *Metrics) Register(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

func (m *Metrics) Port() string {
	if m != nil {
		return m.port
	}
	return ""
}

// NewPromHandler - this handler is used on the endpoint that serves the
// metrics, which is provided on a different port to the service. The default
// InstrumentMetricHandler is suppressed.
func (m *Metrics) NewPromHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
