package httpapi

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
)

// Options настраивает HTTP API.
type Options struct {
	Logger       *log.Entry
	Metrics      *metrics.HTTPMetrics
	RateLimit    float64
	RateBurst    int
	AllowOrigins []string
	Currency     domain.Currency
	Now          func() time.Time
}

// Option изменяет Options.
type Option func(*Options)

// WithLogger задаёт логгер для access log и ошибок.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics включает HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithRateLimit ограничивает число запросов с одного адреса. rps <= 0 выключает лимит.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = rps
		o.RateBurst = burst
	}
}

// WithAllowOrigins задаёт разрешённые CORS origins; "*" разрешает все.
func WithAllowOrigins(origins ...string) Option {
	return func(o *Options) {
		o.AllowOrigins = origins
	}
}

// WithCurrency задаёт валюту, в единицах которой клиент передаёт сумму заказа.
func WithCurrency(currency domain.Currency) Option {
	return func(o *Options) {
		if currency != "" {
			o.Currency = currency
		}
	}
}

// WithClock подменяет часы rate limiter'а в тестах.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// NewRouter собирает gin engine с маршрутами заказов.
func NewRouter(orders OrderService, options ...Option) *gin.Engine {
	opts := Options{
		AllowOrigins: []string{"*"},
		RateBurst:    20,
		Currency:     domain.CurrencyTWD,
		Now:          time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "http-api")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(accessLogMiddleware(opts.Logger))
	r.Use(recoveryMiddleware(opts.Logger))
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}
	r.Use(cors.New(corsConfig(opts.AllowOrigins)))
	if opts.RateLimit > 0 {
		r.Use(rateLimitMiddleware(newClientLimiter(opts.RateLimit, opts.RateBurst, opts.Now)))
	}

	h := &handler{orders: orders, currency: opts.Currency, logger: opts.Logger}

	order := r.Group("/order")
	{
		order.POST("", h.createOrder)
		order.GET("/list", h.searchOrders)
		order.POST("/:orderNumber/pay", h.payOrder)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "route not found"})
	})

	return r
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	return config
}
