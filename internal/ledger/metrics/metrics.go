package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger operations.
type Metrics struct {
	ConsentsGranted *prometheus.CounterVec
	ConsentsRevoked *prometheus.CounterVec
	PersistFailures prometheus.Counter
	RevokeAllTotal  prometheus.Counter
	ExportsTotal    prometheus.Counter
	RecordsPerUser  prometheus.Histogram
}

// New registers and returns ledger metrics collectors.
func New() *Metrics {
	return &Metrics{
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_consents_granted_total",
			Help: "Total number of consents granted, labeled by category",
		}, []string{"category"}),
		ConsentsRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_consents_revoked_total",
			Help: "Total number of consents revoked, labeled by category",
		}, []string{"category"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_ledger_persist_failures_total",
			Help: "Total number of failed ledger state writes; the ledger keeps serving from memory",
		}),
		RevokeAllTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_ledger_revoke_all_total",
			Help: "Total number of revoke-all operations",
		}),
		ExportsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_ledger_exports_total",
			Help: "Total number of consent data exports",
		}),
		RecordsPerUser: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_ledger_records_per_user",
			Help:    "Distribution of consent record counts per user",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) IncGranted(category string) {
	m.ConsentsGranted.WithLabelValues(category).Inc()
}

func (m *Metrics) IncRevoked(category string) {
	m.ConsentsRevoked.WithLabelValues(category).Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) IncRevokeAll() {
	m.RevokeAllTotal.Inc()
}

func (m *Metrics) IncExports() {
	m.ExportsTotal.Inc()
}

func (m *Metrics) ObserveRecordsPerUser(count int) {
	m.RecordsPerUser.Observe(float64(count))
}
