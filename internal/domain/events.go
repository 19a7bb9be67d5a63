package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// KnownOrderEvent сообщает, что тип события относится к жизненному циклу заказа.
func KnownOrderEvent(eventType string) bool {
	switch eventType {
	case EventOrderCreated, EventOrderPaid, EventOrderPaymentFailed:
		return true
	default:
		return false
	}
}

// Источники событий оплаты.
const (
	EventSourceAPI       = "api"
	EventSourceReconcile = "reconcile"
)

// OrderEvent - payload событий жизненного цикла заказа в outbox.
type OrderEvent struct {
	EventType   string      `json:"event_type"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	RentalID    int64       `json:"rental_id"`
	AmountMinor int64       `json:"amount_minor"`
	Currency    Currency    `json:"currency"`
	Status      OrderStatus `json:"status"`
	Source      string      `json:"source,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// NewOrderEvent собирает событие из текущего состояния заказа.
func NewOrderEvent(eventType string, order Order, at time.Time) OrderEvent {
	return OrderEvent{
		EventType:   eventType,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		RentalID:    order.RentalID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Status:      order.Status,
		OccurredAt:  at.UTC(),
	}
}

// OutboxMessage сериализует событие в сообщение outbox. Ключ агрегата - номер заказа.
func (e OrderEvent) OutboxMessage() (OutboxMessage, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", e.EventType, err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   e.OrderNumber,
		EventType:     e.EventType,
		Payload:       payload,
	}, nil
}

// DecodeOrderEvent разбирает сообщение outbox обратно в событие заказа.
// Тип события и номер заказа в payload должны совпадать с полями сообщения.
func DecodeOrderEvent(msg OutboxMessage) (OrderEvent, error) {
	if !KnownOrderEvent(msg.EventType) {
		return OrderEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.EventType)
	}

	var event OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.EventType != msg.EventType {
		return OrderEvent{}, fmt.Errorf("%w: payload type %q, message type %q", ErrMalformedEvent, event.EventType, msg.EventType)
	}
	if event.OrderNumber == "" || event.OrderNumber != msg.AggregateID {
		return OrderEvent{}, fmt.Errorf("%w: order number %q does not match aggregate %q", ErrMalformedEvent, event.OrderNumber, msg.AggregateID)
	}
	return event, nil
}

// PaymentEvent сообщает, что событие несёт результат обращения к провайдеру.
func (e OrderEvent) PaymentEvent() bool {
	return e.EventType == EventOrderPaid || e.EventType == EventOrderPaymentFailed
}

// DeadLetter - событие заказа, которое не удалось опубликовать.
type DeadLetter struct {
	OutboxID      string `json:"outbox_id"`
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	EventType     string `json:"event_type"`
	// Payload - исходное событие, если оно разбирается как JSON.
	Payload json.RawMessage `json:"payload,omitempty"`
	// RawPayload - исходные байты, если JSON повреждён.
	RawPayload     string    `json:"raw_payload,omitempty"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"publish_error"`
	DeadLetteredAt time.Time `json:"dlq_published_at"`
}

// NewDeadLetter фиксирует причину и число попыток публикации сообщения.
func NewDeadLetter(msg OutboxMessage, cause error, attempts int, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Attempts:       attempts,
		DeadLetteredAt: at.UTC(),
	}
	if cause != nil {
		letter.Reason = cause.Error()
	}
	if json.Valid(msg.Payload) {
		letter.Payload = json.RawMessage(msg.Payload)
	} else {
		letter.RawPayload = string(msg.Payload)
	}
	return letter
}

// OutboxMessage упаковывает dead letter в сообщение для DLQ под тем же ID и ключом.
func (d DeadLetter) OutboxMessage() (OutboxMessage, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", d.OutboxID, err)
	}
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       payload,
	}, nil
}
