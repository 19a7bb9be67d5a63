package reconcile

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
)

const (
	defaultInterval   = 30 * time.Second
	defaultStaleAfter = time.Minute
	defaultBatchSize  = 100
)

// WorkerOptions задаёт параметры воркера сверки платежей.
type WorkerOptions struct {
	Logger     *log.Entry
	Metrics    *metrics.OrderMetrics
	Outbox     domain.OutboxRepository
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	Clock      func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики сверки.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithOutbox включает событие order.paid для восстановленных заказов.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *WorkerOptions) {
		opts.Outbox = outbox
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.Interval = interval
	}
}

// WithStaleAfter задаёт возраст, после которого started-попытка считается зависшей.
// Значение <= 0 заменяется значением по умолчанию.
func WithStaleAfter(d time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.StaleAfter = d
	}
}

// WithBatchSize задаёт количество попыток за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *WorkerOptions) {
		opts.Clock = now
	}
}

// Stats - итоги одного прохода сверки.
type Stats struct {
	Scanned int
	// Repaired - заказы, переведённые в SUCCESS по подтверждённому списанию.
	Repaired int
	// Captured - списание подтверждено, заказ уже был оплачен.
	Captured int
	// Failed - провайдер не знает списания, попытка закрыта как failed.
	Failed int
	// Skipped - ошибки провайдера или хранилища, попытка остаётся до следующего прохода.
	Skipped int
}

// Worker закрывает попытки оплаты, зависшие между ответом провайдера и записью заказа.
// Worker только спрашивает провайдера о состоянии списания и никогда не списывает повторно.
type Worker struct {
	orders     domain.OrderRepository
	attempts   domain.PaymentAttemptRepository
	gateway    domain.PaymentGateway
	outbox     domain.OutboxRepository
	logger     *log.Entry
	metrics    *metrics.OrderMetrics
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewWorker создаёт воркер сверки.
func NewWorker(
	orders domain.OrderRepository,
	attempts domain.PaymentAttemptRepository,
	gateway domain.PaymentGateway,
	options ...Option,
) *Worker {
	opts := WorkerOptions{
		Interval:   defaultInterval,
		StaleAfter: defaultStaleAfter,
		BatchSize:  defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "reconcile-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	// Без задержки сверка увидит попытку, чей Pay ещё выполняется.
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		orders:     orders,
		attempts:   attempts,
		gateway:    gateway,
		outbox:     opts.Outbox,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		interval:   opts.Interval,
		staleAfter: opts.StaleAfter,
		batchSize:  opts.BatchSize,
		now:        opts.Clock,
	}
}

// Run выполняет сверку периодически до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil || w.attempts == nil || w.gateway == nil {
		w.logger.Warn("reconcile worker is disabled: missing dependencies")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один проход сверки.
func (w *Worker) ProcessOnce(ctx context.Context) Stats {
	var stats Stats
	if ctx.Err() != nil {
		return stats
	}

	stale, err := w.attempts.ListStale(ctx, w.now().Add(-w.staleAfter), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to list stale payment attempts")
		return stats
	}
	w.metrics.SetStaleAttempts(len(stale))

	for _, attempt := range stale {
		if ctx.Err() != nil {
			break
		}
		stats.Scanned++

		result := w.reconcile(ctx, attempt)
		w.metrics.RecordReconcile(result)
		switch result {
		case metrics.ResultRepaired:
			stats.Repaired++
		case metrics.ResultSuccess:
			stats.Captured++
		case metrics.ResultFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}

	if stats.Scanned > 0 {
		w.logger.WithFields(log.Fields{
			"scanned":  stats.Scanned,
			"repaired": stats.Repaired,
			"captured": stats.Captured,
			"failed":   stats.Failed,
			"skipped":  stats.Skipped,
		}).Info("payment reconciliation finished")
	}
	return stats
}

func (w *Worker) reconcile(ctx context.Context, attempt domain.PaymentAttempt) string {
	logger := w.logger.WithFields(log.Fields{
		"attempt_id":   attempt.ID,
		"order_number": attempt.OrderNumber,
	})

	charge, err := w.gateway.Lookup(ctx, attempt.ID)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound), err == nil && !charge.Captured:
		if markErr := w.attempts.MarkStatus(ctx, attempt.ID, domain.PaymentAttemptFailed); markErr != nil {
			logger.WithError(markErr).Warn("failed to close payment attempt")
			return metrics.ResultSkipped
		}
		logger.Info("payment attempt closed as failed: no capture at provider")
		return metrics.ResultFailed
	case err != nil:
		logger.WithError(err).Warn("payment lookup failed, will retry")
		return metrics.ResultSkipped
	}

	order, err := w.orders.FindByNumber(ctx, attempt.OrderNumber)
	if err != nil {
		logger.WithError(err).Warn("order for captured payment not found")
		return metrics.ResultSkipped
	}

	result := metrics.ResultSuccess
	if !order.Paid() {
		paidAt := w.now()
		if err := order.MarkPaid(paidAt); err != nil {
			return metrics.ResultSkipped
		}
		updated, err := w.orders.Update(ctx, order)
		if err != nil {
			logger.WithError(err).Warn("failed to repair paid order")
			return metrics.ResultSkipped
		}
		w.emitPaid(ctx, logger, updated, paidAt)
		logger.Info("order repaired from captured payment")
		result = metrics.ResultRepaired
	}

	if err := w.attempts.MarkStatus(ctx, attempt.ID, domain.PaymentAttemptCaptured); err != nil {
		logger.WithError(err).Warn("failed to close payment attempt")
		return metrics.ResultSkipped
	}
	return result
}

func (w *Worker) emitPaid(ctx context.Context, logger *log.Entry, order domain.Order, at time.Time) {
	if w.outbox == nil {
		return
	}
	event := domain.NewOrderEvent(domain.EventOrderPaid, order, at)
	event.Source = domain.EventSourceReconcile

	msg, err := event.OutboxMessage()
	if err == nil {
		_, err = w.outbox.Enqueue(ctx, msg)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to enqueue outbox event")
	}
}
