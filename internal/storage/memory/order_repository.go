package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

type ownerRentalKey struct {
	userID   int64
	rentalID int64
}

// orderRepositoryInMemory - in-memory реализация OrderRepository.
// Уникальные индексы по номеру и по паре (user, rental) эмулируются картами.
type orderRepositoryInMemory struct {
	mu            sync.RWMutex
	items         map[string]domain.Order
	byNumber      map[string]string
	byOwnerRental map[ownerRentalKey]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:         make(map[string]domain.Order),
		byNumber:      make(map[string]string),
		byOwnerRental: make(map[ownerRentalKey]string),
	}
}

// FindByOwnerAndRental возвращает заказ пользователя по записи аренды.
func (r *orderRepositoryInMemory) FindByOwnerAndRental(ctx context.Context, userID, rentalID int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOwnerRental[ownerRentalKey{userID: userID, rentalID: rentalID}]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

// FindByNumber возвращает заказ по внешнему номеру.
func (r *orderRepositoryInMemory) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

// Create сохраняет новый заказ, проверяя оба уникальных ключа под одной блокировкой.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ownerRentalKey{userID: order.UserID, rentalID: order.RentalID}
	if _, exists := r.byOwnerRental[key]; exists {
		return domain.Order{}, domain.ErrDuplicateOrder
	}
	if _, exists := r.byNumber[order.Number]; exists {
		return domain.Order{}, domain.ErrOrderNumberConflict
	}
	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, domain.ErrDuplicateOrder
	}

	r.items[order.ID] = order
	r.byNumber[order.Number] = order.ID
	r.byOwnerRental[key] = order.ID
	return order, nil
}

// Update сохраняет статус и время изменения. Ключевые поля заказа не меняются.
func (r *orderRepositoryInMemory) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	current.Status = order.Status
	current.UpdatedAt = order.UpdatedAt
	r.items[order.ID] = current
	return current, nil
}

// List возвращает заказы пользователя, новые первыми.
func (r *orderRepositoryInMemory) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if filter.Match(order) {
			result = append(result, order)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
