package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

// ErrDeclined - отказ провайдера в списании.
var ErrDeclined = errors.New("payment declined by provider")

// MockGateway - конфигурируемая заглушка платёжного провайдера.
// Запоминает подтверждённые списания по reference, чтобы их можно было найти через Lookup.
type MockGateway struct {
	mu sync.Mutex

	// PayErr возвращается из Pay; списание при этом не записывается.
	PayErr error
	// LookupErr возвращается из Lookup вместо поиска.
	LookupErr error

	charges     map[string]domain.PaymentResult
	payCalls    int
	lookupCalls int
}

// NewMockGateway возвращает заглушку с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{charges: make(map[string]domain.PaymentResult)}
}

// Pay подтверждает списание или возвращает настроенную ошибку.
func (m *MockGateway) Pay(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payCalls++
	if err := ctx.Err(); err != nil {
		return domain.PaymentResult{}, err
	}
	if m.PayErr != nil {
		return domain.PaymentResult{}, m.PayErr
	}

	result := domain.PaymentResult{
		Reference:   req.Reference,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Captured:    true,
	}
	m.charges[req.Reference] = result
	return result, nil
}

// Lookup возвращает ранее подтверждённое списание или ErrPaymentNotFound.
func (m *MockGateway) Lookup(ctx context.Context, reference string) (domain.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookupCalls++
	if err := ctx.Err(); err != nil {
		return domain.PaymentResult{}, err
	}
	if m.LookupErr != nil {
		return domain.PaymentResult{}, m.LookupErr
	}
	result, ok := m.charges[reference]
	if !ok {
		return domain.PaymentResult{}, domain.ErrPaymentNotFound
	}
	return result, nil
}

// SetPayErr переключает сценарий Pay под блокировкой.
func (m *MockGateway) SetPayErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PayErr = err
}

// PayCalls возвращает количество вызовов Pay.
func (m *MockGateway) PayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payCalls
}

// LookupCalls возвращает количество вызовов Lookup.
func (m *MockGateway) LookupCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
