package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
)

// DefaultOrderNumberAttempts - сколько раз генерируется номер при коллизиях.
const DefaultOrderNumberAttempts = 3

// errNotCaptured - провайдер ответил без ошибки, но списание не подтвердил.
var errNotCaptured = errors.New("payment was not captured")

// CreateOrderInput - данные для создания заказа.
type CreateOrderInput struct {
	UserID      int64
	RentalID    int64
	AmountMinor int64
}

// Validate проверяет входные данные и возвращает объединённую ошибку.
func (in CreateOrderInput) Validate() error {
	var errs []error
	if in.UserID <= 0 {
		errs = append(errs, domain.ErrInvalidUserID)
	}
	if in.RentalID <= 0 {
		errs = append(errs, domain.ErrInvalidRentalID)
	}
	if in.AmountMinor <= 0 {
		errs = append(errs, domain.ErrInvalidAmount)
	}
	return errors.Join(errs...)
}

// Service управляет жизненным циклом заказов на оплату аренды.
// Собственного состояния нет: всё разделяемое лежит в хранилищах.
type Service struct {
	orders   domain.OrderRepository
	attempts domain.PaymentAttemptRepository
	gateway  domain.PaymentGateway
	numbers  domain.OrderNumberGenerator
	outbox   domain.OutboxRepository

	logger         *log.Entry
	metrics        *metrics.OrderMetrics
	now            func() time.Time
	newID          func() string
	currency       domain.Currency
	numberAttempts int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox включает запись событий в transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор внутренних идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithCurrency задаёт валюту новых заказов.
func WithCurrency(currency domain.Currency) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithOrderNumberAttempts ограничивает число генераций номера при коллизиях.
func WithOrderNumberAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.numberAttempts = n
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(
	orders domain.OrderRepository,
	attempts domain.PaymentAttemptRepository,
	gateway domain.PaymentGateway,
	numbers domain.OrderNumberGenerator,
	opts ...Option,
) *Service {
	s := &Service{
		orders:         orders,
		attempts:       attempts,
		gateway:        gateway,
		numbers:        numbers,
		logger:         log.WithField("component", "order-service"),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		currency:       domain.CurrencyTWD,
		numberAttempts: DefaultOrderNumberAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder создаёт заказ PENDING для пары (user, rental).
// Коллизия номера приводит к повторной генерации, коллизия пары - к ErrDuplicateOrder.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	logger := s.logger.WithFields(log.Fields{
		"user_id":   in.UserID,
		"rental_id": in.RentalID,
	})

	if err := in.Validate(); err != nil {
		s.metrics.RecordCreateRejected("validation")
		return domain.Order{}, err
	}

	if _, err := s.orders.FindByOwnerAndRental(ctx, in.UserID, in.RentalID); err == nil {
		s.metrics.RecordCreateRejected("duplicate")
		return domain.Order{}, domain.ErrDuplicateOrder
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("find existing order: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		now := s.now()
		order := domain.Order{
			ID:          s.newID(),
			Number:      s.numbers.Generate(),
			UserID:      in.UserID,
			RentalID:    in.RentalID,
			AmountMinor: in.AmountMinor,
			Currency:    s.currency,
			Status:      domain.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := order.Validate(); err != nil {
			return domain.Order{}, fmt.Errorf("build order: %w", err)
		}

		created, err := s.orders.Create(ctx, order)
		switch {
		case err == nil:
			s.metrics.RecordOrderCreated()
			s.emit(ctx, domain.NewOrderEvent(domain.EventOrderCreated, created, now))
			logger.WithField("order_number", created.Number).Info("order created")
			return created, nil
		case errors.Is(err, domain.ErrOrderNumberConflict):
			lastErr = err
			logger.WithFields(log.Fields{
				"order_number": order.Number,
				"attempt":      attempt,
			}).Warn("order number collision, regenerating")
		case errors.Is(err, domain.ErrDuplicateOrder):
			// Параллельный запрос успел создать заказ между проверкой и вставкой.
			s.metrics.RecordCreateRejected("duplicate")
			return domain.Order{}, err
		default:
			return domain.Order{}, fmt.Errorf("create order: %w", err)
		}
	}

	s.metrics.RecordCreateRejected("number_conflict")
	return domain.Order{}, fmt.Errorf("order number attempts exhausted (%d): %w", s.numberAttempts, lastErr)
}

// SearchOrders возвращает заказы пользователя, новые первыми. Пустой результат не ошибка.
func (s *Service) SearchOrders(ctx context.Context, userID int64, status domain.OptionalStatus) ([]domain.Order, error) {
	filter := domain.OrderFilter{UserID: userID, Status: status}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// PayOrder списывает оплату по заказу.
// Отказ провайдера возвращается как PaymentOutcome со статусом FAILED и nil-ошибкой,
// заказ при этом остаётся PENDING и его можно оплатить повторно.
func (s *Service) PayOrder(ctx context.Context, number string) (domain.PaymentOutcome, error) {
	logger := s.logger.WithField("order_number", number)

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.PaymentOutcome{}, err
		}
		return domain.PaymentOutcome{}, fmt.Errorf("find order: %w", err)
	}
	if order.Paid() {
		return domain.PaymentOutcome{}, domain.ErrAlreadyPaid
	}

	now := s.now()
	attempt := domain.PaymentAttempt{
		ID:          s.newID(),
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Status:      domain.PaymentAttemptStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.PaymentOutcome{}, fmt.Errorf("record payment attempt: %w", err)
	}
	logger = logger.WithField("attempt_id", attempt.ID)

	started := time.Now()
	result, payErr := s.gateway.Pay(ctx, domain.PaymentRequest{
		Reference:   attempt.ID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
	})
	elapsed := time.Since(started)
	if payErr == nil && !result.Captured {
		payErr = errNotCaptured
	}

	if payErr != nil {
		s.metrics.RecordPayment(metrics.ResultFailed, elapsed)
		logger.WithError(payErr).Warn("payment failed")
		s.markAttempt(ctx, logger, attempt.ID, domain.PaymentAttemptFailed)

		failedAt := s.now()
		event := domain.NewOrderEvent(domain.EventOrderPaymentFailed, order, failedAt)
		event.Source = domain.EventSourceAPI
		event.Reason = payErr.Error()
		s.emit(ctx, event)

		return outcomeOf(order, domain.OrderStatusFailed, failedAt), nil
	}

	paidAt := s.now()
	if err := order.MarkPaid(paidAt); err != nil {
		return domain.PaymentOutcome{}, err
	}
	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		// Деньги списаны, но заказ не обновлён: попытка остаётся started до сверки.
		s.metrics.RecordPayment(metrics.ResultError, elapsed)
		logger.WithError(err).Error("payment captured but order update failed")
		return domain.PaymentOutcome{}, fmt.Errorf("save paid order: %w", err)
	}

	s.metrics.RecordPayment(metrics.ResultSuccess, elapsed)
	s.markAttempt(ctx, logger, attempt.ID, domain.PaymentAttemptCaptured)

	event := domain.NewOrderEvent(domain.EventOrderPaid, updated, paidAt)
	event.Source = domain.EventSourceAPI
	s.emit(ctx, event)

	logger.Info("order paid")
	return outcomeOf(updated, domain.OrderStatusSuccess, paidAt), nil
}

func (s *Service) markAttempt(ctx context.Context, logger *log.Entry, id string, status domain.PaymentAttemptStatus) {
	if err := s.attempts.MarkStatus(ctx, id, status); err != nil {
		logger.WithError(err).WithField("attempt_status", status).Warn("failed to update payment attempt")
	}
}

// emit пишет событие в outbox. Ошибка записи не отменяет уже выполненную операцию.
func (s *Service) emit(ctx context.Context, event domain.OrderEvent) {
	if s.outbox == nil {
		return
	}
	msg, err := event.OutboxMessage()
	if err == nil {
		_, err = s.outbox.Enqueue(ctx, msg)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_number": event.OrderNumber,
			"event_type":   event.EventType,
		}).Warn("failed to enqueue outbox event")
	}
}

func outcomeOf(order domain.Order, status domain.OrderStatus, at time.Time) domain.PaymentOutcome {
	return domain.PaymentOutcome{
		OrderNumber: order.Number,
		UserID:      order.UserID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		PayAt:       at,
		Status:      status,
	}
}
