package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics: RED-метрики HTTP API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics регистрирует метрики в указанном registerer (nil означает DefaultRegisterer).
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests grouped by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
	}
}

// Begin отмечает начало запроса.
func (m *HTTPMetrics) Begin() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// End фиксирует завершённый запрос. route: шаблон маршрута, а не сырой путь.
func (m *HTTPMetrics) End(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}
