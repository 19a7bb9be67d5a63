package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// Topic возвращает topic, в который публикуются сообщения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// outboxEnvelope - формат сообщения в topic событий заказа.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	// Ключ по номеру заказа сохраняет порядок событий одного заказа в партиции.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := outboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.now().UTC(),
	}
	if len(envelope.Payload) == 0 {
		envelope.Payload = json.RawMessage("null")
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		{Key: []byte(HeaderOutboxID), Value: []byte(event.ID)},
		{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
	}

	return p.producer.PublishEvent(ctx, p.topic, key, envelope, headers...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
