package domain

import (
	"errors"
	"regexp"
	"time"
)

// OrderStatus описывает жизненный цикл заказа на оплату аренды.
type OrderStatus string

const (
	// OrderStatusPending - заказ создан и ожидает оплаты.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusSuccess - оплата подтверждена провайдером, статус конечный.
	OrderStatusSuccess OrderStatus = "SUCCESS"
	// OrderStatusFailed - статус неуспешной оплаты. PayOrder его не сохраняет,
	// но хранилище и фильтр поиска его принимают.
	OrderStatusFailed OrderStatus = "FAILED"
)

// Currency - код валюты платежа.
type Currency string

// CurrencyTWD - внутренняя валюта расчётов по аренде.
const CurrencyTWD Currency = "TWD"

var orderNumberPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{5}$`)

// Order - заказ на оплату записи аренды.
type Order struct {
	// ID - внутренний идентификатор, наружу не отдаётся.
	ID string
	// Number - внешний номер заказа вида RTYER87012.
	Number   string
	UserID   int64
	RentalID int64
	// AmountMinor - сумма в минимальных единицах валюты, не меняется после создания.
	AmountMinor int64
	Currency    Currency
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusSuccess, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает внешнее строковое значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// ValidOrderNumber проверяет формат номера: 5 заглавных латинских букв и 5 цифр.
func ValidOrderNumber(number string) bool {
	return orderNumberPattern.MatchString(number)
}

// Paid сообщает, что по заказу уже прошла успешная оплата.
func (o Order) Paid() bool {
	return o.Status == OrderStatusSuccess
}

// MarkPaid переводит заказ PENDING → SUCCESS. Повторная оплата запрещена.
func (o *Order) MarkPaid(at time.Time) error {
	if o.Paid() {
		return ErrAlreadyPaid
	}
	o.Status = OrderStatusSuccess
	o.UpdatedAt = at
	return nil
}

// Validate проверяет инварианты заказа и возвращает объединённую ошибку.
func (o *Order) Validate() error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrInvalidUserID)
	}
	if o.RentalID <= 0 {
		errs = append(errs, ErrInvalidRentalID)
	}
	if o.AmountMinor <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if !ValidOrderNumber(o.Number) {
		errs = append(errs, ErrInvalidOrderNumber)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}

	return errors.Join(errs...)
}

// OptionalStatus - явный опциональный фильтр по статусу.
// Нулевое значение означает «любой статус».
type OptionalStatus struct {
	status OrderStatus
	set    bool
}

// AnyStatus возвращает фильтр без ограничения по статусу.
func AnyStatus() OptionalStatus {
	return OptionalStatus{}
}

// StatusOf возвращает фильтр на точное совпадение статуса.
func StatusOf(status OrderStatus) OptionalStatus {
	return OptionalStatus{status: status, set: true}
}

// Get возвращает статус и признак того, что фильтр задан.
func (s OptionalStatus) Get() (OrderStatus, bool) {
	return s.status, s.set
}

// Matches проверяет статус заказа против фильтра.
func (s OptionalStatus) Matches(status OrderStatus) bool {
	return !s.set || s.status == status
}

// String нужен для логов.
func (s OptionalStatus) String() string {
	if !s.set {
		return "any"
	}
	return string(s.status)
}

// OrderFilter задаёт выборку заказов пользователя.
type OrderFilter struct {
	UserID int64
	Status OptionalStatus
}

// Validate проверяет, что фильтр пригоден для выборки.
func (f OrderFilter) Validate() error {
	if f.UserID <= 0 {
		return ErrInvalidUserID
	}
	if status, ok := f.Status.Get(); ok && !status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Match проверяет заказ против фильтра.
func (f OrderFilter) Match(order Order) bool {
	return order.UserID == f.UserID && f.Status.Matches(order.Status)
}

// PaymentOutcome - результат PayOrder. Отказ провайдера не ошибка, а Status=FAILED.
type PaymentOutcome struct {
	OrderNumber string
	UserID      int64
	AmountMinor int64
	Currency    Currency
	PayAt       time.Time
	Status      OrderStatus
}

// Succeeded сообщает, что оплата прошла.
func (o PaymentOutcome) Succeeded() bool {
	return o.Status == OrderStatusSuccess
}
