package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

var (
	errAmountRequired  = errors.New("amount is required")
	errAmountNotNumber = errors.New("amount must be a number")
)

// createOrderRequest - тело POST /order.
// Отсутствующее поле и ноль отсекаются правилом required, отрицательные значения - gt=0.
// Сумма проверяется при переводе в минимальные единицы валюты.
type createOrderRequest struct {
	UserID   int64         `json:"userId" binding:"required,gt=0"`
	RentalID int64         `json:"rentalId" binding:"required,gt=0"`
	Amount   requestAmount `json:"amount"`
}

// requestAmount - десятичная сумма в валюте заказа. Строки не принимаются.
type requestAmount struct {
	value decimal.Decimal
	set   bool
}

func (a *requestAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] == '"' {
		return errAmountNotNumber
	}
	value, err := decimal.NewFromString(string(data))
	if err != nil {
		return errAmountNotNumber
	}
	a.value, a.set = value, true
	return nil
}

// minor возвращает сумму в минимальных единицах валюты.
func (a requestAmount) minor(currency domain.Currency) (int64, error) {
	if !a.set {
		return 0, errAmountRequired
	}
	return currency.ToMinor(a.value)
}

// searchOrdersQuery - параметры GET /order/list. Статус разбирается отдельно,
// чтобы отличать отсутствующий фильтр от пустого значения.
type searchOrdersQuery struct {
	UserID int64 `form:"userId" binding:"required,gt=0"`
}

type orderResponse struct {
	OrderNumber string      `json:"orderNumber"`
	RentalID    int64       `json:"rentalId"`
	UserID      int64       `json:"userId"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type orderListResponse struct {
	Total  int             `json:"total"`
	Orders []orderResponse `json:"orders"`
}

type payOrderResponse struct {
	OrderNumber string      `json:"orderNumber"`
	UserID      int64       `json:"userId"`
	PayAt       time.Time   `json:"payAt"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		OrderNumber: order.Number,
		RentalID:    order.RentalID,
		UserID:      order.UserID,
		Amount:      formatAmount(order.Currency, order.AmountMinor),
		Currency:    string(order.Currency),
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC(),
	}
}

func newOrderListResponse(orders []domain.Order) orderListResponse {
	items := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, newOrderResponse(order))
	}
	return orderListResponse{Total: len(items), Orders: items}
}

func newPayOrderResponse(outcome domain.PaymentOutcome) payOrderResponse {
	return payOrderResponse{
		OrderNumber: outcome.OrderNumber,
		UserID:      outcome.UserID,
		PayAt:       outcome.PayAt.UTC(),
		Amount:      formatAmount(outcome.Currency, outcome.AmountMinor),
		Currency:    string(outcome.Currency),
		Status:      string(outcome.Status),
	}
}

// formatAmount отдаёт сумму числом JSON в единицах валюты.
func formatAmount(currency domain.Currency, minor int64) json.Number {
	return json.Number(currency.FromMinor(minor).String())
}
