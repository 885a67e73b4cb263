package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

// Collector owns the relay's Prometheus collectors on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	streamFragments    *prometheus.CounterVec
	streamDuration     *prometheus.HistogramVec
	upstreamErrors     *prometheus.CounterVec
	streamsInFlight    prometheus.Gauge
}

// NewCollector creates and registers all collectors. Process and Go runtime
// collectors are included.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected message lists by issue code.",
		}, []string{"code"}),
		streamFragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Fragments written to clients by provider.",
		}, []string{"provider"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Time from stream start to its terminal outcome.",
			// LLM streams run from sub-second to a few minutes.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "outcome"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Provider failures by phase (connect or stream).",
		}, []string{"provider", "phase"}),
		streamsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_in_flight",
			Help:      "Chat streams currently being written.",
		}),
	}
	reg.MustRegister(
		c.httpRequests,
		c.validationFailures,
		c.streamFragments,
		c.streamDuration,
		c.upstreamErrors,
		c.streamsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RecordRequest counts one served HTTP request.
func (c *Collector) RecordRequest(route string, status int) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordValidationFailure counts one issue code of a rejected request.
func (c *Collector) RecordValidationFailure(code string) {
	if c == nil {
		return
	}
	c.validationFailures.WithLabelValues(code).Inc()
}

// StreamStarted marks a stream as in flight. Call the returned func when it ends.
func (c *Collector) StreamStarted() func() {
	if c == nil {
		return func() {}
	}
	c.streamsInFlight.Inc()
	return c.streamsInFlight.Dec
}

// RecordStream records a finished stream.
func (c *Collector) RecordStream(provider, outcome string, fragments int, d time.Duration) {
	if c == nil {
		return
	}
	c.streamFragments.WithLabelValues(provider).Add(float64(fragments))
	c.streamDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

// RecordUpstreamError counts a provider failure.
func (c *Collector) RecordUpstreamError(provider, phase string) {
	if c == nil {
		return
	}
	c.upstreamErrors.WithLabelValues(provider, phase).Inc()
}
