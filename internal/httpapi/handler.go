package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/service/order"
)

// OrderService - операции над заказами, которые публикует HTTP API.
type OrderService interface {
	CreateOrder(ctx context.Context, in order.CreateOrderInput) (domain.Order, error)
	SearchOrders(ctx context.Context, userID int64, status domain.OptionalStatus) ([]domain.Order, error)
	PayOrder(ctx context.Context, number string) (domain.PaymentOutcome, error)
}

type handler struct {
	orders   OrderService
	currency domain.Currency
	logger   *log.Entry
}

// createOrder обрабатывает POST /order.
func (h *handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	amountMinor, err := req.Amount.minor(h.currency)
	if err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %w", errInvalidRequest, err))
		return
	}

	created, err := h.orders.CreateOrder(c.Request.Context(), order.CreateOrderInput{
		UserID:      req.UserID,
		RentalID:    req.RentalID,
		AmountMinor: amountMinor,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, newOrderResponse(created))
}

// searchOrders обрабатывает GET /order/list?userId=&status=.
func (h *handler) searchOrders(c *gin.Context) {
	var query searchOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeError(c, h.logger, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	filter := domain.AnyStatus()
	if raw, ok := c.GetQuery("status"); ok {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		filter = domain.StatusOf(status)
	}

	orders, err := h.orders.SearchOrders(c.Request.Context(), query.UserID, filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, newOrderListResponse(orders))
}

// payOrder обрабатывает POST /order/:orderNumber/pay.
// Отказ провайдера - обычный ответ 200 со статусом FAILED.
func (h *handler) payOrder(c *gin.Context) {
	outcome, err := h.orders.PayOrder(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, newPayOrderResponse(outcome))
}
