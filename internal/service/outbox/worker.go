package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// WorkerOptions задаёт параметры ретрансляции событий заказа.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.OutboxMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Clock          func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики публикации по типам событий.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для dead letter.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт число событий за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт паузу перед второй попыткой; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithClock подменяет источник времени для dead letter и возраста backlog.
func WithClock(now func() time.Time) Option {
	return func(opts *WorkerOptions) {
		opts.Clock = now
	}
}

// Worker ретранслирует события заказов из outbox в брокер.
// Повторяется только публикация; заказы и платежи worker не трогает.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		now:            opts.Clock,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку событий в порядке их записи.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return
	}
	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		w.relay(ctx, msg)
	}

	w.reportBacklog(ctx)
}

// relay публикует одно событие и закрывает его запись в outbox.
func (w *Worker) relay(ctx context.Context, msg domain.OutboxMessage) {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"order_number": msg.AggregateID,
	})

	event, err := domain.DecodeOrderEvent(msg)
	if err != nil {
		// Повтор не исправит чужое или повреждённое событие.
		w.metrics.RecordPublish(msg.EventType, metrics.OutboxResultRejected)
		w.deadLetter(ctx, logger, msg, 0, err)
		return
	}

	attempts, err := w.publish(ctx, msg)
	switch {
	case err == nil:
		w.metrics.RecordPublish(event.EventType, metrics.OutboxResultSent)
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			logger.WithError(err).Warn("failed to mark order event as sent")
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Событие остаётся pending до следующего запуска.
		logger.Debug("order event relay interrupted")
	default:
		w.metrics.RecordPublish(event.EventType, metrics.OutboxResultDeadLettered)
		if event.PaymentEvent() {
			logger = logger.WithField("order_status", event.Status)
		}
		w.deadLetter(ctx, logger, msg, attempts, err)
	}
}

// publish делает до maxAttempts попыток и возвращает их число.
func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	for attempt := 1; ; attempt++ {
		err := w.publisher.Publish(ctx, msg)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if attempt >= w.maxAttempts {
			return attempt, fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}
		w.metrics.RecordPublish(msg.EventType, metrics.OutboxResultRetry)

		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// retryBackoff - пауза после attempt-й неудачной попытки, не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// deadLetter отправляет событие в DLQ и помечает запись failed.
func (w *Worker) deadLetter(ctx context.Context, logger *log.Entry, msg domain.OutboxMessage, attempts int, cause error) {
	logger.WithError(cause).WithField("attempts", attempts).Error("order event moved to dead letter")

	if w.dlqPublisher != nil {
		letter, err := domain.NewDeadLetter(msg, cause, attempts, w.now()).OutboxMessage()
		if err == nil {
			err = w.dlqPublisher.Publish(ctx, letter)
		}
		if err != nil {
			w.metrics.RecordPublish(msg.EventType, metrics.OutboxResultDLQFailed)
			logger.WithError(err).Warn("failed to publish dead letter")
		}
	}

	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		logger.WithError(err).Warn("failed to mark order event as failed")
	}
}

func (w *Worker) reportBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
