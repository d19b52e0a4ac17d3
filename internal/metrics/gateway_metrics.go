package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics: вызовы внешних шлюзов (платёжные провайдеры, Correios).
type GatewayMetrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewGatewayMetrics регистрирует метрики в указанном registerer (nil означает DefaultRegisterer).
func NewGatewayMetrics(registerer prometheus.Registerer) *GatewayMetrics {
	return &GatewayMetrics{
		calls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_gateway_calls_total",
			Help: "External gateway calls grouped by gateway, operation and result.",
		}, []string{"gateway", "operation", "result"}),
		latency: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_gateway_call_duration_seconds",
			Help:    "Latency of external gateway calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"gateway", "operation"}),
	}
}

// Observe записывает вызов; удобно как defer m.Observe(name, op, time.Now(), &err).
func (m *GatewayMetrics) Observe(gateway, operation string, started time.Time, err *error) {
	if m == nil {
		return
	}
	var callErr error
	if err != nil {
		callErr = *err
	}
	m.calls.WithLabelValues(gateway, operation, resultLabel(callErr)).Inc()
	m.latency.WithLabelValues(gateway, operation).Observe(time.Since(started).Seconds())
}
