package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
// Ограничения уникальности проверяются самим хранилищем в момент записи.
type OrderRepository interface {
	// FindByOwnerAndRental ищет заказ по паре (user, rental) или возвращает ErrOrderNotFound.
	FindByOwnerAndRental(ctx context.Context, userID, rentalID int64) (Order, error)
	// FindByNumber ищет заказ по внешнему номеру или возвращает ErrOrderNotFound.
	FindByNumber(ctx context.Context, number string) (Order, error)
	// Create сохраняет новый заказ. ErrDuplicateOrder или ErrOrderNumberConflict при нарушении уникальности.
	Create(ctx context.Context, order Order) (Order, error)
	// Update сохраняет переход статуса. ErrOrderNotFound, если записи больше нет.
	Update(ctx context.Context, order Order) (Order, error)
	// List возвращает заказы пользователя по убыванию CreatedAt.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// PaymentAttemptRepository хранит маркеры обращений к платёжному провайдеру.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt PaymentAttempt) error
	MarkStatus(ctx context.Context, id string, status PaymentAttemptStatus) error
	// ListStale возвращает незавершённые попытки старше olderThan, самые старые первыми.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]PaymentAttempt, error)
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// Pay инициирует списание. Любая ошибка означает, что оплата не подтверждена.
	Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	// Lookup возвращает состояние списания по reference или ErrPaymentNotFound.
	Lookup(ctx context.Context, reference string) (PaymentResult, error)
}

// OrderNumberGenerator выдаёт внешние номера заказов.
// Уникальность не гарантируется, её проверяет хранилище.
type OrderNumberGenerator interface {
	Generate() string
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// Типы событий жизненного цикла заказа.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
)

// AggregateOrder - тип агрегата для сообщений outbox.
const AggregateOrder = "order"

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
