package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the audit pipeline.
type Metrics struct {
	EntriesEmitted   *prometheus.CounterVec
	EntriesDropped   *prometheus.CounterVec
	EntriesPublished prometheus.Counter
	PublishFailures  prometheus.Counter
	QueueDepth       prometheus.Gauge
	PollDuration     prometheus.Histogram
	BatchSize        prometheus.Histogram
}

// New registers and returns audit metrics collectors.
func New() *Metrics {
	return &Metrics{
		EntriesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_audit_entries_emitted_total",
			Help: "Total number of audit entries emitted, labeled by category",
		}, []string{"category"}),
		EntriesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped, labeled by reason",
		}, []string{"reason"}),
		EntriesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_audit_entries_published_total",
			Help: "Total number of audit entries delivered to the sink",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_audit_publish_failures_total",
			Help: "Total number of failed sink deliveries",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "assent_audit_queue_depth",
			Help: "Current number of entries waiting in the outbox",
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_audit_poll_duration_seconds",
			Help:    "Duration of outbox poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_audit_batch_size",
			Help:    "Number of entries drained per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) IncEmitted(category string) {
	m.EntriesEmitted.WithLabelValues(category).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	m.EntriesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncPublished() {
	m.EntriesPublished.Inc()
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}

func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) ObservePollDuration(seconds float64) {
	m.PollDuration.Observe(seconds)
}

func (m *Metrics) ObserveBatchSize(size int) {
	m.BatchSize.Observe(float64(size))
}
