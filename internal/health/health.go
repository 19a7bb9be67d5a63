package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// defaultCheckTimeout ограничивает одну проверку, если вызывающий не задал свой.
const defaultCheckTimeout = 2 * time.Second

// Check представляет проверку здоровья компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check(ctx context.Context) Check
}

type registration struct {
	checker Checker
	// optional-проверки переводят сервис в degraded, но не снимают readiness.
	optional bool
}

// Handler обрабатывает health check запросы
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]registration
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]registration),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
	}
}

// SetTimeout меняет лимит времени на одну проверку.
func (h *Handler) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = timeout
}

// RegisterChecker регистрирует критичную проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.register(name, registration{checker: checker})
}

// RegisterOptional регистрирует некритичную проверку: её отказ даёт degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, registration{checker: checker, optional: true})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = reg
}

// Evaluate выполняет все проверки и возвращает агрегированный ответ.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]registration, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	timeout := h.timeout
	h.mu.RUnlock()

	checks := make(map[string]Check, len(checkers))
	overallStatus := StatusHealthy

	for name, reg := range checkers {
		check := runCheck(ctx, reg.checker, timeout)
		if reg.optional && check.Status == StatusUnhealthy {
			check.Status = StatusDegraded
		}
		checks[name] = check

		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return Response{
		Status:        overallStatus,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

func runCheck(ctx context.Context, checker Checker, timeout time.Duration) Check {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return checker.Check(ctx)
}

// ServeHTTP обрабатывает HTTP запрос
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Evaluate(r.Context())

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready сообщает, проходят ли все критичные проверки.
func (h *Handler) Ready(ctx context.Context) bool {
	return h.Evaluate(ctx).Status != StatusUnhealthy
}

// ReadinessHandler проверяет готовность к обработке запросов
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.Ready(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker простая проверка с функцией
type SimpleChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewSimpleChecker создаёт простую проверку
func NewSimpleChecker(name string, checkFn func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{
		name:    name,
		checkFn: checkFn,
	}
}

// Check выполняет проверку
func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// OutboxStatsSource - то, из чего читается размер backlog outbox.
type OutboxStatsSource interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxBacklogChecker сообщает degraded, когда неотправленных событий слишком много
// или самое старое из них ждёт дольше maxAge.
type OutboxBacklogChecker struct {
	source     OutboxStatsSource
	maxPending int
	maxAge     time.Duration
	now        func() time.Time
}

// NewOutboxBacklogChecker создаёт проверку backlog. Нулевой порог не проверяется.
func NewOutboxBacklogChecker(source OutboxStatsSource, maxPending int, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{
		source:     source,
		maxPending: maxPending,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Check выполняет проверку
func (c *OutboxBacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	result := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.source.Stats(ctx)
	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	case c.maxPending > 0 && stats.PendingCount > c.maxPending:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d pending messages", stats.PendingCount)
	case c.maxAge > 0 && stats.PendingCount > 0 && c.now().Sub(stats.OldestPendingAt) > c.maxAge:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("oldest pending message is %s old", c.now().Sub(stats.OldestPendingAt).Round(time.Second))
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
