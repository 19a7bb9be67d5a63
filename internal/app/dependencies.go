package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/rentorders/internal/health"
	"github.com/vladislavdragonenkov/rentorders/internal/service/ordernumber"
	"github.com/vladislavdragonenkov/rentorders/internal/service/payment"
	"github.com/vladislavdragonenkov/rentorders/internal/storage/memory"
	"github.com/vladislavdragonenkov/rentorders/internal/storage/postgres"
)

// runtimeDependencies - хранилища и внешние интеграции, выбранные по конфигурации.
type runtimeDependencies struct {
	orders     domain.OrderRepository
	attempts   domain.PaymentAttemptRepository
	outboxRepo domain.OutboxRepository
	gateway    domain.PaymentGateway
	numbers    domain.OrderNumberGenerator

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies создаёт хранилища под выбранный драйвер.
// NOTE: платёжный провайдер пока только заглушка, реальный клиент подключается здесь же.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{
		gateway: payment.NewMockGateway(),
		numbers: ordernumber.NewRandom(),
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.orders = memory.NewOrderRepository()
		deps.attempts = memory.NewPaymentAttemptRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.storageChecker = healthcheck.NewSimpleChecker("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")
		return deps, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage driver requires OMS_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}

		deps.orders = postgres.NewOrderRepository(store)
		deps.attempts = postgres.NewPaymentAttemptRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.storageChecker = healthcheck.NewSimpleChecker("postgres", store.Check)
		deps.closeFn = store.Close
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return deps, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
