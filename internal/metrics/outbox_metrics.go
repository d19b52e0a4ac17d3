package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox.
const (
	OutboxResultSent      = "sent"
	OutboxResultRetry     = "retry_error"
	OutboxResultFailed    = "failed"
	OutboxResultDLQ       = "dlq"
	OutboxResultDLQFailed = "dlq_failed"
)

// OutboxMetrics: метрики transactional outbox и его backlog.
type OutboxMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox (nil означает DefaultRegisterer).
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Pending records in transactional outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record.",
		}),
	}
}

// Attempt учитывает попытку публикации с результатом result.
func (m *OutboxMetrics) Attempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// Backlog обновляет размер и возраст очереди.
func (m *OutboxMetrics) Backlog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 || pending == 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldestAge.Seconds())
}
