package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы саги заказа.
const (
	SagaOutcomeCompleted = "completed"
	SagaOutcomeAwaiting  = "awaiting_payment"
	SagaOutcomeFailed    = "failed"
	SagaOutcomeCanceled  = "canceled"
	SagaOutcomeRefunded  = "refunded"
)

// SagaMetrics содержит метрики саги заказа: Reserve → Pay → Accept → Confirm.
type SagaMetrics struct {
	started  prometheus.Counter
	outcomes *prometheus.CounterVec

	duration     prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	active prometheus.Gauge
}

// NewSagaMetrics регистрирует метрики в DefaultRegisterer.
func NewSagaMetrics() *SagaMetrics {
	return NewSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSagaMetricsWithRegisterer регистрирует метрики в указанном registerer.
func NewSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	return &SagaMetrics{
		started: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_saga_started_total",
			Help: "Total number of order sagas started.",
		}),
		outcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_saga_outcomes_total",
			Help: "Order saga outcomes grouped by result.",
		}, []string{"outcome"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_saga_duration_seconds",
			Help:    "Duration of order sagas in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"step", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of order status steps recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_enqueued_total",
			Help: "Total number of events enqueued to the transactional outbox.",
		}),
		active: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_sagas",
			Help: "Number of order sagas in progress.",
		}),
	}
}

// SagaStarted учитывает запуск саги и увеличивает число активных.
func (m *SagaMetrics) SagaStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Inc()
}

// SagaFinished фиксирует исход и длительность саги.
func (m *SagaMetrics) SagaFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
}

// Outcome учитывает исход без активной саги (отмена, возврат).
func (m *SagaMetrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// StepDuration записывает время шага саги.
func (m *SagaMetrics) StepDuration(step string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step, resultLabel(err)).Observe(duration.Seconds())
}

// TimelineEvent учитывает запись шага статуса.
func (m *SagaMetrics) TimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// OutboxEvent учитывает постановку события в outbox.
func (m *SagaMetrics) OutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
