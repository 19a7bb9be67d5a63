package domain

import "time"

// PaymentAttemptStatus описывает состояние попытки оплаты заказа.
type PaymentAttemptStatus string

const (
	// PaymentAttemptStarted - запрос к провайдеру отправлен, результат ещё не записан.
	PaymentAttemptStarted PaymentAttemptStatus = "started"
	// PaymentAttemptCaptured - провайдер подтвердил списание.
	PaymentAttemptCaptured PaymentAttemptStatus = "captured"
	// PaymentAttemptFailed - провайдер отказал или списания не было.
	PaymentAttemptFailed PaymentAttemptStatus = "failed"
)

// PaymentAttempt - маркер обращения к провайдеру. Пишется до вызова Pay,
// чтобы сверка могла найти списание, не дошедшее до заказа.
type PaymentAttempt struct {
	// ID используется как reference у провайдера.
	ID          string
	OrderID     string
	OrderNumber string
	AmountMinor int64
	Currency    Currency
	Status      PaymentAttemptStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentAttemptStatus) Valid() bool {
	switch s {
	case PaymentAttemptStarted, PaymentAttemptCaptured, PaymentAttemptFailed:
		return true
	default:
		return false
	}
}

// Finished сообщает, что попытка уже получила окончательный результат.
func (s PaymentAttemptStatus) Finished() bool {
	return s == PaymentAttemptCaptured || s == PaymentAttemptFailed
}

// PaymentRequest - запрос на списание у провайдера.
type PaymentRequest struct {
	Reference   string
	AmountMinor int64
	Currency    Currency
}

// PaymentResult - ответ провайдера о списании.
type PaymentResult struct {
	Reference   string
	AmountMinor int64
	Currency    Currency
	Captured    bool
}
