package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result для платежей и сверки.
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultError    = "error"
	ResultRepaired = "repaired"
	ResultSkipped  = "skipped"
)

var paymentBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// OrderMetrics содержит метрики жизненного цикла заказов.
// Нулевой указатель допустим: все методы тогда ничего не делают.
type OrderMetrics struct {
	ordersCreated   prometheus.Counter
	createRejected  *prometheus.CounterVec
	payments        *prometheus.CounterVec
	paymentDuration prometheus.Histogram
	reconciled      *prometheus.CounterVec
	pendingAttempts prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: newCounter(registerer, prometheus.CounterOpts{
			Name: "rentorders_orders_created_total",
			Help: "Total number of rental orders created",
		}),
		createRejected: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "rentorders_order_create_rejected_total",
			Help: "Total number of rejected order creations by reason",
		}, "reason"),
		payments: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "rentorders_payments_total",
			Help: "Total number of payment attempts by result",
		}, "result"),
		paymentDuration: newHistogram(registerer, prometheus.HistogramOpts{
			Name:    "rentorders_payment_gateway_duration_seconds",
			Help:    "Duration of payment gateway calls in seconds",
			Buckets: paymentBuckets,
		}),
		reconciled: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "rentorders_payment_reconcile_total",
			Help: "Total number of reconciled payment attempts by result",
		}, "result"),
		pendingAttempts: newGauge(registerer, prometheus.GaugeOpts{
			Name: "rentorders_payment_attempts_stale",
			Help: "Number of stale payment attempts found by the last reconcile run",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordCreateRejected учитывает отказ в создании заказа.
func (m *OrderMetrics) RecordCreateRejected(reason string) {
	if m == nil {
		return
	}
	m.createRejected.WithLabelValues(reason).Inc()
}

// RecordPayment учитывает результат обращения к провайдеру и его длительность.
func (m *OrderMetrics) RecordPayment(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
	m.paymentDuration.Observe(duration.Seconds())
}

// RecordReconcile учитывает результат сверки одной попытки оплаты.
func (m *OrderMetrics) RecordReconcile(result string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(result).Inc()
}

// SetStaleAttempts фиксирует количество зависших попыток в последнем проходе сверки.
func (m *OrderMetrics) SetStaleAttempts(n int) {
	if m == nil {
		return
	}
	m.pendingAttempts.Set(float64(n))
}
