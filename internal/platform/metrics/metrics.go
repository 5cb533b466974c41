package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics. Domain packages carry
// their own collectors; this covers the shared transport surface.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	EndpointLatency *prometheus.HistogramVec
	AuthFailures    prometheus.Counter
}

// New creates and registers the HTTP metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_http_requests_total",
			Help: "Total HTTP requests, labeled by method and status class",
		}, []string{"method", "status"}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assent_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_auth_failures_total",
			Help: "Total number of rejected bearer tokens",
		}),
	}
}

// IncRequest records one completed request.
func (m *Metrics) IncRequest(method, statusClass string) {
	m.RequestsTotal.WithLabelValues(method, statusClass).Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// IncAuthFailures counts a rejected bearer token.
func (m *Metrics) IncAuthFailures() {
	m.AuthFailures.Inc()
}
