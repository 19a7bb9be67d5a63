package kafka

import "github.com/vladislavdragonenkov/rentorders/internal/domain"

// Topics для Kafka
const (
	TopicOrderEvents     = "rentorders.order.events"
	TopicDeadLetterQueue = "rentorders.order.dlq" // Dead Letter Queue для сообщений, исчерпавших ретраи
)

// Kafka headers, с которыми публикуются события outbox
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderAggregateType = "x-aggregate-type"
)

// KnownEventType сообщает, что тип события относится к жизненному циклу заказа.
func KnownEventType(eventType string) bool {
	return domain.KnownOrderEvent(eventType)
}
