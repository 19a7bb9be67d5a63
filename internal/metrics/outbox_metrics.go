package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

// Значения label result для публикации событий из outbox.
const (
	OutboxResultSent          = "sent"
	OutboxResultRetry         = "retry"
	OutboxResultDeadLettered  = "dead_lettered"
	OutboxResultDLQFailed     = "dlq_failed"
	OutboxResultRejected      = "rejected"
	outboxUnknownEventTypeTag = "unknown"
)

// OutboxMetrics - метрики ретрансляции событий заказа. Нулевой указатель допустим.
type OutboxMetrics struct {
	publishes     *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		publishes: newCounterVec(registerer, prometheus.CounterOpts{
			Name: "rentorders_outbox_publish_total",
			Help: "Outbox publish results by order event type",
		}, "event_type", "result"),
		pending: newGauge(registerer, prometheus.GaugeOpts{
			Name: "rentorders_outbox_pending_records",
			Help: "Order events waiting in the outbox",
		}),
		oldestPending: newGauge(registerer, prometheus.GaugeOpts{
			Name: "rentorders_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending order event in seconds",
		}),
	}
}

// RecordPublish учитывает результат публикации события. Чужие типы событий
// сводятся к одному значению label, чтобы не раздувать кардинальность.
func (m *OutboxMetrics) RecordPublish(eventType, result string) {
	if m == nil {
		return
	}
	if !domain.KnownOrderEvent(eventType) {
		eventType = outboxUnknownEventTypeTag
	}
	m.publishes.WithLabelValues(eventType, result).Inc()
}

// SetBacklog фиксирует размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 || pending == 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestPending.Set(oldestAge.Seconds())
}
