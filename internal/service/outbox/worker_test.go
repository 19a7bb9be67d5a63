package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
	"github.com/vladislavdragonenkov/rentorders/internal/storage/memory"
)

type pendingLister interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

func enqueueEvent(t *testing.T, repo domain.OutboxRepository, eventType, number string) domain.OutboxMessage {
	t.Helper()

	order := domain.Order{
		Number:      number,
		UserID:      1,
		RentalID:    1,
		AmountMinor: 100,
		Currency:    domain.CurrencyTWD,
		Status:      domain.OrderStatusPending,
	}
	msg, err := domain.NewOrderEvent(eventType, order, time.Now()).OutboxMessage()
	if err != nil {
		t.Fatalf("build outbox message: %v", err)
	}
	saved, err := repo.Enqueue(context.Background(), msg)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return saved
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	saved := enqueueEvent(t, repo, domain.EventOrderCreated, "AAAAA00001")
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
	if got := publisher.published()[0].ID; got != saved.ID {
		t.Fatalf("expected published id %s, got %s", saved.ID, got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_PublishesInEnqueueOrder(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	created := enqueueEvent(t, repo, domain.EventOrderCreated, "AAAAA00002")
	paid := enqueueEvent(t, repo, domain.EventOrderPaid, "AAAAA00002")
	publisher := &stubPublisher{}

	NewWorker(repo, publisher, WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	got := publisher.published()
	if len(got) != 2 || got[0].ID != created.ID || got[1].ID != paid.ID {
		t.Fatalf("unexpected publish order: %+v", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	saved := enqueueEvent(t, repo, domain.EventOrderPaymentFailed, "AAAAA00003")
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("failed message must leave the backlog, got %d", len(pending))
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	var envelope map[string]any
	if err := json.Unmarshal(dlqPublisher.published()[0].Payload, &envelope); err != nil {
		t.Fatalf("decode dlq payload: %v", err)
	}
	if envelope["outbox_id"] != saved.ID || envelope["event_type"] != domain.EventOrderPaymentFailed {
		t.Fatalf("unexpected dlq envelope: %+v", envelope)
	}
	if reason, _ := envelope["publish_error"].(string); !strings.Contains(reason, "broker unavailable") {
		t.Fatalf("unexpected publish_error: %v", envelope["publish_error"])
	}
	if envelope["attempts"] != float64(3) {
		t.Fatalf("expected 3 attempts in dead letter, got %v", envelope["attempts"])
	}
	if dlqPublisher.published()[0].AggregateID != "AAAAA00003" {
		t.Fatalf("dead letter must keep the order number as key: %+v", dlqPublisher.published()[0])
	}
}

func TestWorker_ProcessOnce_RejectsForeignAndBrokenEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	foreign, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "saga",
		AggregateID:   "saga-1",
		EventType:     "saga.started",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	broken, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "AAAAA00010",
		EventType:     domain.EventOrderPaid,
		Payload:       []byte(`{"event_type":`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	publisher := &stubPublisher{}
	dlqPublisher := &stubPublisher{}

	NewWorker(repo, publisher, WithDLQPublisher(dlqPublisher), WithRetryBaseDelay(0)).ProcessOnce(ctx)

	if got := publisher.calls(); got != 0 {
		t.Fatalf("rejected events must not reach the broker, got %d calls", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("rejected events must leave the backlog, got %d", len(pending))
	}

	letters := dlqPublisher.published()
	if len(letters) != 2 || letters[0].ID != foreign.ID || letters[1].ID != broken.ID {
		t.Fatalf("unexpected dead letters: %+v", letters)
	}
	var letter domain.DeadLetter
	if err := json.Unmarshal(letters[1].Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.Attempts != 0 || letter.RawPayload != `{"event_type":` {
		t.Fatalf("unexpected dead letter for broken event: %+v", letter)
	}
	if !strings.Contains(letter.Reason, domain.ErrMalformedEvent.Error()) {
		t.Fatalf("unexpected reason: %s", letter.Reason)
	}
}

func TestWorker_ProcessOnce_CancelDuringRetryKeepsEventPending(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueueEvent(t, repo, domain.EventOrderPaid, "AAAAA00011")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	publisher := &stubPublisher{err: errors.New("broker unavailable"), onPublish: cancel}
	dlqPublisher := &stubPublisher{}

	NewWorker(repo, publisher, WithDLQPublisher(dlqPublisher), WithMaxAttempts(5), WithRetryBaseDelay(time.Second)).ProcessOnce(ctx)

	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected a single attempt before shutdown, got %d", got)
	}
	if got := dlqPublisher.calls(); got != 0 {
		t.Fatalf("shutdown must not dead-letter events, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 1 {
		t.Fatalf("event must stay pending for the next run, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_MetricsByEventType(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.NewOutboxMetricsWithRegisterer(registry)
	repo := memory.NewOutboxRepository()
	enqueueEvent(t, repo, domain.EventOrderCreated, "AAAAA00012")
	enqueueEvent(t, repo, domain.EventOrderPaid, "AAAAA00012")
	publisher := &stubPublisher{sequenceErrors: []error{nil, errors.New("leader not available"), nil}}

	NewWorker(repo, publisher, WithMetrics(m), WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	count, err := testutil.GatherAndCount(registry, "rentorders_outbox_publish_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// order.created/sent, order.paid/retry, order.paid/sent
	if count != 3 {
		t.Fatalf("expected 3 series, got %d", count)
	}
	if got, err := testutil.GatherAndCount(registry, "rentorders_outbox_pending_records"); err != nil || got != 1 {
		t.Fatalf("expected backlog gauge, got %d %v", got, err)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueueEvent(t, repo, domain.EventOrderPaid, "AAAAA00004")
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	var repo pendingLister = memory.NewOutboxRepository()
	enqueueEvent(t, repo, domain.EventOrderCreated, "AAAAA00005")
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewWorker(repo, publisher).ProcessOnce(ctx)

	if got := publisher.calls(); got != 0 {
		t.Fatalf("expected no publish calls, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 1 {
		t.Fatalf("expected message to stay pending, got %d", len(pending))
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, expected := range want {
		if got := worker.retryBackoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}

	if got := NewWorker(nil, nil, WithRetryBaseDelay(0)).retryBackoff(3); got != 0 {
		t.Fatalf("expected zero backoff, got %s", got)
	}
	if got := NewWorker(nil, nil, WithRetryBaseDelay(time.Second)).retryBackoff(20); got != maxRetryDelay {
		t.Fatalf("expected backoff capped at %s, got %s", maxRetryDelay, got)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(
		memory.NewOutboxRepository(),
		&stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	sent           []domain.OutboxMessage
	onPublish      func()
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if s.onPublish != nil {
		s.onPublish()
	}
	err := s.err
	if len(s.sequenceErrors) > 0 {
		err = s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
	}
	if err == nil {
		s.sent = append(s.sent, msg)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) published() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxMessage(nil), s.sent...)
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
