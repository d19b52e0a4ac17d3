package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обработки задачи checkout.
const (
	CheckoutResultSucceeded   = "succeeded"
	CheckoutResultFailed      = "failed"
	CheckoutResultRescheduled = "rescheduled"
	CheckoutResultSkipped     = "skipped"
)

// CheckoutMetrics: метрики фоновых задач checkout.
type CheckoutMetrics struct {
	submitted prometheus.Counter
	processed *prometheus.CounterVec
	attempts  prometheus.Histogram
	duration  prometheus.Histogram
	lag       prometheus.Histogram
}

// NewCheckoutMetrics регистрирует метрики в указанном registerer (nil означает DefaultRegisterer).
func NewCheckoutMetrics(registerer prometheus.Registerer) *CheckoutMetrics {
	return &CheckoutMetrics{
		submitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_jobs_submitted_total",
			Help: "Checkout jobs created from carts.",
		}),
		processed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_checkout_jobs_processed_total",
			Help: "Checkout job runs grouped by result.",
		}, []string{"result"}),
		attempts: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_job_attempts",
			Help:    "Attempts spent by checkout jobs that reached a terminal state.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_job_duration_seconds",
			Help:    "Duration of a single checkout job run.",
			Buckets: prometheus.DefBuckets,
		}),
		lag: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_checkout_job_lag_seconds",
			Help:    "Delay between next_run_at and the moment a job was claimed.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

// Submitted учитывает новую задачу.
func (m *CheckoutMetrics) Submitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

// Claimed фиксирует задержку между плановым и фактическим запуском.
func (m *CheckoutMetrics) Claimed(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.lag.Observe(lag.Seconds())
}

// Processed фиксирует результат прогона задачи.
func (m *CheckoutMetrics) Processed(result string, attempts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(result).Inc()
	m.duration.Observe(duration.Seconds())
	if result == CheckoutResultSucceeded || result == CheckoutResultFailed {
		m.attempts.Observe(float64(attempts))
	}
}
