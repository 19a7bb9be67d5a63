package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
	"github.com/vladislavdragonenkov/rentorders/internal/service/order"
	"github.com/vladislavdragonenkov/rentorders/internal/service/ordernumber"
	"github.com/vladislavdragonenkov/rentorders/internal/service/payment"
	"github.com/vladislavdragonenkov/rentorders/internal/storage/memory"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now возвращает текущее время и сдвигает часы на сутки.
func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(24 * time.Hour)
	return now
}

type apiFixture struct {
	router  http.Handler
	gateway *payment.MockGateway
}

func newAPIFixture(t *testing.T, options ...Option) apiFixture {
	t.Helper()

	gateway := payment.NewMockGateway()
	clock := &steppingClock{now: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := order.NewService(
		memory.NewOrderRepository(),
		memory.NewPaymentAttemptRepository(),
		gateway,
		ordernumber.NewSeeded(7, 11),
		order.WithClock(clock.Now),
	)

	options = append([]Option{WithLogger(quietLogger())}, options...)
	return apiFixture{
		router:  NewRouter(svc, options...),
		gateway: gateway,
	}
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createOrder(t *testing.T, router http.Handler, userID, rentalID, amount int64) orderResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/order", map[string]int64{
		"userId":   userID,
		"rentalId": rentalID,
		"amount":   amount,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[orderResponse](t, rec)
}

func TestCreateOrder_InvalidRequests(t *testing.T) {
	fx := newAPIFixture(t)

	bodies := map[string]string{
		"null":                 `null`,
		"empty object":         `{}`,
		"empty body":           ``,
		"missing rentalId":     `{"userId":1,"amount":100}`,
		"missing userId":       `{"rentalId":1,"amount":100}`,
		"missing amount":       `{"userId":1,"rentalId":1}`,
		"rentalId not integer": `{"userId":1,"rentalId":"not integer","amount":100}`,
		"rentalId negative":    `{"userId":1,"rentalId":-1,"amount":100}`,
		"userId not integer":   `{"userId":"not integer","rentalId":1,"amount":100}`,
		"userId negative":      `{"userId":-1,"rentalId":1,"amount":100}`,
		"amount not integer":   `{"userId":1,"rentalId":1,"amount":"not integer"}`,
		"amount negative":      `{"userId":1,"rentalId":1,"amount":-1}`,
		"amount zero":          `{"userId":1,"rentalId":1,"amount":0}`,
		"amount null":          `{"userId":1,"rentalId":1,"amount":null}`,
		"amount quoted number": `{"userId":1,"rentalId":1,"amount":"100"}`,
		"amount too precise":   `{"userId":1,"rentalId":1,"amount":10.555}`,
		"malformed json":       `{"userId":1,`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, fx.router, http.MethodPost, "/order", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestCreateOrder_Created(t *testing.T) {
	fx := newAPIFixture(t)

	created := createOrder(t, fx.router, 1, 1, 100)

	assert.Regexp(t, `^[A-Z]{5}[0-9]{5}$`, created.OrderNumber)
	assert.Equal(t, orderResponse{
		OrderNumber: created.OrderNumber,
		RentalID:    1,
		UserID:      1,
		Amount:      "100",
		Currency:    "TWD",
		Status:      "PENDING",
		CreatedAt:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}, created)
}

type capturingService struct {
	failingService
	input order.CreateOrderInput
}

func (s *capturingService) CreateOrder(_ context.Context, in order.CreateOrderInput) (domain.Order, error) {
	s.input = in
	return domain.Order{
		Number:      "AAAAA00001",
		UserID:      in.UserID,
		RentalID:    in.RentalID,
		AmountMinor: in.AmountMinor,
		Currency:    domain.CurrencyTWD,
		Status:      domain.OrderStatusPending,
	}, nil
}

func TestCreateOrder_DecimalAmount(t *testing.T) {
	svc := &capturingService{}
	router := NewRouter(svc, WithLogger(quietLogger()))

	rec := doJSON(t, router, http.MethodPost, "/order", `{"userId":1,"rentalId":1,"amount":99.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(9950), svc.input.AmountMinor)
	assert.JSONEq(t, `99.5`, string(decode[orderResponse](t, rec).Amount))
	assert.Contains(t, rec.Body.String(), `"amount":99.5`)
}

func TestCreateOrder_AmountFollowsCurrencyExponent(t *testing.T) {
	svc := &capturingService{}
	router := NewRouter(svc, WithLogger(quietLogger()), WithCurrency("JPY"))

	rec := doJSON(t, router, http.MethodPost, "/order", `{"userId":1,"rentalId":1,"amount":1500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1500), svc.input.AmountMinor)

	rec = doJSON(t, router, http.MethodPost, "/order", `{"userId":1,"rentalId":2,"amount":1500.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "decimal places")
}

func TestPayOrder_DecimalAmountRoundTrip(t *testing.T) {
	fx := newAPIFixture(t)

	rec := doJSON(t, fx.router, http.MethodPost, "/order", `{"userId":1,"rentalId":1,"amount":99.5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orderResponse](t, rec)
	assert.Equal(t, json.Number("99.5"), created.Amount)

	rec = doJSON(t, fx.router, http.MethodPost, "/order/"+created.OrderNumber+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("99.5"), decode[payOrderResponse](t, rec).Amount)
}

func TestCreateOrder_Duplicate(t *testing.T) {
	fx := newAPIFixture(t)
	createOrder(t, fx.router, 1, 1, 100)

	rec := doJSON(t, fx.router, http.MethodPost, "/order", map[string]int64{
		"userId": 1, "rentalId": 1, "amount": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrDuplicateOrder.Error(), decode[errorResponse](t, rec).Error)
}

func TestSearchOrders_InvalidRequests(t *testing.T) {
	fx := newAPIFixture(t)

	queries := map[string]url.Values{
		"missing userId":     {"status": {"PENDING"}},
		"userId not integer": {"userId": {"not integer"}, "status": {"PENDING"}},
		"userId negative":    {"userId": {"-1"}, "status": {"PENDING"}},
		"invalid status":     {"userId": {"1"}, "status": {"INVALID"}},
		"empty status":       {"userId": {"1"}, "status": {""}},
	}

	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, fx.router, http.MethodGet, "/order/list?"+query.Encode(), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchOrders_FilterAndOrdering(t *testing.T) {
	fx := newAPIFixture(t)

	first := createOrder(t, fx.router, 1, 1, 50)
	second := createOrder(t, fx.router, 1, 2, 50)
	paid := createOrder(t, fx.router, 2, 3, 50)
	createOrder(t, fx.router, 2, 4, 100)

	rec := doJSON(t, fx.router, http.MethodPost, "/order/"+paid.OrderNumber+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, fx.router, http.MethodGet, "/order/list?userId=1&status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[orderListResponse](t, rec)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, []string{second.OrderNumber, first.OrderNumber},
		[]string{list.Orders[0].OrderNumber, list.Orders[1].OrderNumber})

	rec = doJSON(t, fx.router, http.MethodGet, "/order/list?userId=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[orderListResponse](t, rec)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "PENDING", list.Orders[0].Status)
	assert.Equal(t, "SUCCESS", list.Orders[1].Status)

	rec = doJSON(t, fx.router, http.MethodGet, "/order/list?userId=2&status=SUCCESS", nil)
	list = decode[orderListResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, paid.OrderNumber, list.Orders[0].OrderNumber)

	rec = doJSON(t, fx.router, http.MethodGet, "/order/list?userId=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":0,"orders":[]}`, rec.Body.String())
}

func TestPayOrder(t *testing.T) {
	fx := newAPIFixture(t)
	created := createOrder(t, fx.router, 1, 1, 100)

	rec := doJSON(t, fx.router, http.MethodPost, "/order/"+created.OrderNumber+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	paid := decode[payOrderResponse](t, rec)
	assert.Equal(t, created.OrderNumber, paid.OrderNumber)
	assert.Equal(t, int64(1), paid.UserID)
	assert.Equal(t, json.Number("100"), paid.Amount)
	assert.Equal(t, "TWD", paid.Currency)
	assert.Equal(t, "SUCCESS", paid.Status)
	assert.False(t, paid.PayAt.IsZero())

	rec = doJSON(t, fx.router, http.MethodPost, "/order/"+created.OrderNumber+"/pay", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrAlreadyPaid.Error(), decode[errorResponse](t, rec).Error)
	assert.Equal(t, 1, fx.gateway.PayCalls())
}

func TestPayOrder_GatewayFailureIsFailedOutcome(t *testing.T) {
	fx := newAPIFixture(t)
	created := createOrder(t, fx.router, 1, 1, 100)
	fx.gateway.SetPayErr(payment.ErrDeclined)

	rec := doJSON(t, fx.router, http.MethodPost, "/order/"+created.OrderNumber+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FAILED", decode[payOrderResponse](t, rec).Status)

	rec = doJSON(t, fx.router, http.MethodGet, "/order/list?userId=1", nil)
	list := decode[orderListResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "PENDING", list.Orders[0].Status)
}

func TestPayOrder_NotFound(t *testing.T) {
	fx := newAPIFixture(t)

	rec := doJSON(t, fx.router, http.MethodPost, "/order/ZZZZZ99999/pay", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ErrOrderNotFound.Error(), decode[errorResponse](t, rec).Error)
	assert.Zero(t, fx.gateway.PayCalls())
}

type failingService struct {
	err   error
	panic bool
}

func (f failingService) CreateOrder(context.Context, order.CreateOrderInput) (domain.Order, error) {
	if f.panic {
		panic("boom")
	}
	return domain.Order{}, f.err
}

func (f failingService) SearchOrders(context.Context, int64, domain.OptionalStatus) ([]domain.Order, error) {
	return nil, f.err
}

func (f failingService) PayOrder(context.Context, string) (domain.PaymentOutcome, error) {
	return domain.PaymentOutcome{}, f.err
}

func TestInternalErrorsAreHidden(t *testing.T) {
	router := NewRouter(failingService{err: errors.New("connection refused")}, WithLogger(quietLogger()))

	rec := doJSON(t, router, http.MethodGet, "/order/list?userId=1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decode[errorResponse](t, rec).Error)

	rec = doJSON(t, router, http.MethodPost, "/order/AAAAA00000/pay", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPanicRecovered(t *testing.T) {
	router := NewRouter(failingService{panic: true}, WithLogger(quietLogger()))

	rec := doJSON(t, router, http.MethodPost, "/order", map[string]int64{"userId": 1, "rentalId": 1, "amount": 1})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.ErrInvalidAmount, want: http.StatusBadRequest},
		{name: "bad request body", err: errInvalidRequest, want: http.StatusBadRequest},
		{name: "duplicate", err: domain.ErrDuplicateOrder, want: http.StatusBadRequest},
		{name: "already paid", err: domain.ErrAlreadyPaid, want: http.StatusBadRequest},
		{name: "not found", err: domain.ErrOrderNotFound, want: http.StatusNotFound},
		{name: "number conflict exhausted", err: domain.ErrOrderNumberConflict, want: http.StatusInternalServerError},
		{name: "store failure", err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	fx := newAPIFixture(t)

	rec := doJSON(t, fx.router, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	fx := newAPIFixture(t, WithMetrics(metrics.NewHTTPMetricsWithRegisterer(reg)))

	createOrder(t, fx.router, 1, 1, 100)
	doJSON(t, fx.router, http.MethodGet, "/order/list?userId=-1", nil)

	count, err := testutil.GatherAndCount(reg, "rentorders_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCORSPreflight(t *testing.T) {
	fx := newAPIFixture(t, WithAllowOrigins("https://rent.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/order", nil)
	req.Header.Set("Origin", "https://rent.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://rent.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
