package metrics

import "github.com/prometheus/client_golang/prometheus"

// CleanupMetrics: метрики очистки просроченных ключей идемпотентности.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки (nil означает DefaultRegisterer).
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency records deleted.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_idempotency_cleanup_last_deleted",
			Help: "Records deleted during the last cleanup run.",
		}),
	}
}

// Run фиксирует прогон очистки.
func (m *CleanupMetrics) Run(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.lastDeleted.Set(float64(deleted))
}

// Deleted добавляет удалённые записи.
func (m *CleanupMetrics) Deleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.Add(float64(n))
}
