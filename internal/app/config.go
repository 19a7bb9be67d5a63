package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
	"github.com/vladislavdragonenkov/rentorders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/rentorders/internal/service/order"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// AllowMockPayments разрешает заглушку провайдера при постоянном хранилище.
	AllowMockPayments bool

	Currency            domain.Currency
	OrderNumberAttempts int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending - порог backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileBatchSize  int

	HTTPRateLimit    float64
	HTTPRateBurst    int
	CORSAllowOrigins []string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		Currency:            domain.CurrencyTWD,
		OrderNumberAttempts: order.DefaultOrderNumberAttempts,
		KafkaClientID:       "rentorders",
		KafkaTopic:          kafka.TopicOrderEvents,
		KafkaDLQTopic:       kafka.TopicDeadLetterQueue,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
		ReconcileInterval:   30 * time.Second,
		ReconcileStaleAfter: time.Minute,
		ReconcileBatchSize:  100,
		HTTPRateBurst:       20,
		CORSAllowOrigins:    []string{"*"},
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage driver requires a DSN"))
		}
		if !c.AllowMockPayments {
			errs = append(errs, errors.New("mock payment gateway with postgres storage must be allowed explicitly"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.Currency == "" {
		errs = append(errs, errors.New("currency must not be empty"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address must not be empty"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled сообщает, настроена ли публикация событий.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
