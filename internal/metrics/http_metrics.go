package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics содержит метрики HTTP API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetricsWithRegisterer регистрирует метрики HTTP API.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "rentorders_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, "method", "route", "code"),
		duration: newHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "rentorders_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, "method", "route"),
	}
}

// Observe учитывает завершённый запрос.
func (m *HTTPMetrics) Observe(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}
