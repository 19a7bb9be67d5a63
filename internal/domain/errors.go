package domain

import "errors"

var (
	// Ошибка неположительного идентификатора пользователя.
	ErrInvalidUserID = errors.New("user_id must be positive")
	// Ошибка неположительного идентификатора аренды.
	ErrInvalidRentalID = errors.New("rental_id must be positive")
	// Ошибка неположительной суммы заказа.
	ErrInvalidAmount = errors.New("amount must be positive")
	// Ошибка неизвестного статуса заказа (в том числе в фильтре поиска).
	ErrInvalidStatus = errors.New("invalid order status")
	// Ошибка формата номера заказа.
	ErrInvalidOrderNumber = errors.New("invalid order number")
	// ErrDuplicateOrder - заказ для пары (user, rental) уже существует.
	ErrDuplicateOrder = errors.New("order already created")
	// ErrOrderNumberConflict - сгенерированный номер заказа уже занят.
	ErrOrderNumberConflict = errors.New("order number conflict")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyPaid - заказ уже оплачен, повторная оплата запрещена.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrPaymentNotFound - провайдер не знает платёж с таким reference.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAttemptNotFound - попытка оплаты отсутствует в хранилище.
	ErrPaymentAttemptNotFound = errors.New("payment attempt not found")
	// ErrOutboxPublish - ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrUnknownEventType - сообщение outbox не относится к событиям заказа.
	ErrUnknownEventType = errors.New("unknown order event type")
	// ErrMalformedEvent - payload сообщения outbox не разбирается как событие заказа.
	ErrMalformedEvent = errors.New("malformed order event")
)

var validationErrors = []error{
	ErrInvalidUserID,
	ErrInvalidRentalID,
	ErrInvalidAmount,
	ErrInvalidStatus,
	ErrInvalidOrderNumber,
}

// IsValidation проверяет, является ли ошибка ошибкой входных данных.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict проверяет, нарушает ли ошибка ограничения уникальности.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateOrder) || errors.Is(err, ErrOrderNumberConflict)
}
