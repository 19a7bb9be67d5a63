package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

// paymentAttemptRepositoryInMemory хранит маркеры попыток оплаты.
type paymentAttemptRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.PaymentAttempt
	now   func() time.Time
}

// NewPaymentAttemptRepository создаёт in-memory хранилище попыток оплаты.
func NewPaymentAttemptRepository() *paymentAttemptRepositoryInMemory {
	return &paymentAttemptRepositoryInMemory{
		items: make(map[string]domain.PaymentAttempt),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create сохраняет попытку. Повторный ID считается ошибкой вызывающего кода.
func (r *paymentAttemptRepositoryInMemory) Create(ctx context.Context, attempt domain.PaymentAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[attempt.ID]; exists {
		return fmt.Errorf("payment attempt %s already exists", attempt.ID)
	}
	r.items[attempt.ID] = attempt
	return nil
}

// MarkStatus обновляет статус попытки.
func (r *paymentAttemptRepositoryInMemory) MarkStatus(ctx context.Context, id string, status domain.PaymentAttemptStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.items[id]
	if !ok {
		return domain.ErrPaymentAttemptNotFound
	}
	attempt.Status = status
	attempt.UpdatedAt = r.now()
	r.items[id] = attempt
	return nil
}

// ListStale возвращает незавершённые попытки, созданные раньше olderThan.
func (r *paymentAttemptRepositoryInMemory) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.PaymentAttempt, 0)
	for _, attempt := range r.items {
		if attempt.Status != domain.PaymentAttemptStarted {
			continue
		}
		if !attempt.CreatedAt.Before(olderThan) {
			continue
		}
		result = append(result, attempt)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Get возвращает попытку по идентификатору (используется в тестах).
func (r *paymentAttemptRepositoryInMemory) Get(id string) (domain.PaymentAttempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempt, ok := r.items[id]
	return attempt, ok
}

// All возвращает копию всех попыток (используется в тестах).
func (r *paymentAttemptRepositoryInMemory) All() []domain.PaymentAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PaymentAttempt, 0, len(r.items))
	for _, attempt := range r.items {
		result = append(result, attempt)
	}
	return result
}

var _ domain.PaymentAttemptRepository = (*paymentAttemptRepositoryInMemory)(nil)
