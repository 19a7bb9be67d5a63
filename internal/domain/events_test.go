package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestOrderEventOutboxMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	order := Order{
		ID:          "id-1",
		Number:      "QWERT12345",
		UserID:      3,
		RentalID:    9,
		AmountMinor: 250,
		Currency:    CurrencyTWD,
		Status:      OrderStatusSuccess,
	}

	event := NewOrderEvent(EventOrderPaid, order, at)
	event.Source = EventSourceReconcile

	msg, err := event.OutboxMessage()
	if err != nil {
		t.Fatalf("build outbox message: %v", err)
	}
	if msg.AggregateType != AggregateOrder || msg.AggregateID != "QWERT12345" || msg.EventType != EventOrderPaid {
		t.Fatalf("unexpected message envelope: %+v", msg)
	}

	var decoded OrderEvent
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Source != EventSourceReconcile || decoded.Status != OrderStatusSuccess || !decoded.OccurredAt.Equal(at) {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestDecodeOrderEvent(t *testing.T) {
	order := Order{Number: "QWERT12345", UserID: 3, RentalID: 9, AmountMinor: 250, Currency: CurrencyTWD, Status: OrderStatusPending}
	msg, err := NewOrderEvent(EventOrderCreated, order, time.Now()).OutboxMessage()
	if err != nil {
		t.Fatalf("build outbox message: %v", err)
	}

	event, err := DecodeOrderEvent(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.OrderNumber != "QWERT12345" || event.PaymentEvent() {
		t.Fatalf("unexpected event: %+v", event)
	}

	tests := []struct {
		name string
		mut  func(m *OutboxMessage)
		want error
	}{
		{name: "unknown type", mut: func(m *OutboxMessage) { m.EventType = "saga.started" }, want: ErrUnknownEventType},
		{name: "broken json", mut: func(m *OutboxMessage) { m.Payload = []byte("{") }, want: ErrMalformedEvent},
		{name: "type mismatch", mut: func(m *OutboxMessage) { m.EventType = EventOrderPaid }, want: ErrMalformedEvent},
		{name: "foreign aggregate", mut: func(m *OutboxMessage) { m.AggregateID = "ZZZZZ00000" }, want: ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := msg
			tt.mut(&broken)
			if _, err := DecodeOrderEvent(broken); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDeadLetter(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateOrder,
		AggregateID:   "QWERT12345",
		EventType:     EventOrderPaid,
		Payload:       []byte(`{"event_type":"order.paid"}`),
	}

	dlq, err := NewDeadLetter(msg, errors.New("broker unavailable"), 3, at).OutboxMessage()
	if err != nil {
		t.Fatalf("build dead letter: %v", err)
	}
	if dlq.ID != msg.ID || dlq.AggregateID != msg.AggregateID || dlq.EventType != msg.EventType {
		t.Fatalf("dead letter must keep message identity: %+v", dlq)
	}

	var letter DeadLetter
	if err := json.Unmarshal(dlq.Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.Attempts != 3 || letter.Reason != "broker unavailable" || !letter.DeadLetteredAt.Equal(at) {
		t.Fatalf("unexpected dead letter: %+v", letter)
	}
	if string(letter.Payload) != string(msg.Payload) || letter.RawPayload != "" {
		t.Fatalf("valid payload must be embedded as JSON: %+v", letter)
	}

	msg.Payload = []byte("{broken")
	if _, err := NewDeadLetter(msg, nil, 0, at).OutboxMessage(); err != nil {
		t.Fatalf("broken payload must still produce a dead letter: %v", err)
	}
	if got := NewDeadLetter(msg, nil, 0, at).RawPayload; got != "{broken" {
		t.Fatalf("expected raw payload, got %q", got)
	}
}
