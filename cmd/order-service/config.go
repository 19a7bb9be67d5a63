package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/rentorders/internal/app"
	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

const (
	envHTTPAddr            = "OMS_HTTP_ADDR"
	envGRPCAddr            = "OMS_GRPC_ADDR"
	envMetricsAddr         = "OMS_METRICS_ADDR"
	envStorageDriver       = "OMS_STORAGE_DRIVER"
	envPostgresDSN         = "OMS_POSTGRES_DSN"
	envPostgresAutoMigrate = "OMS_POSTGRES_AUTO_MIGRATE"
	envAllowMockPayments   = "OMS_ALLOW_MOCK_PAYMENTS"
	envCurrency            = "OMS_CURRENCY"
	envOrderNumberAttempts = "OMS_ORDER_NUMBER_ATTEMPTS"

	envKafkaBrokers  = "KAFKA_BROKERS"
	envKafkaClientID = "OMS_KAFKA_CLIENT_ID"
	envKafkaTopic    = "OMS_KAFKA_TOPIC"
	envKafkaDLQTopic = "OMS_KAFKA_DLQ_TOPIC"

	envOutboxPollInterval = "OMS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "OMS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "OMS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "OMS_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending   = "OMS_OUTBOX_MAX_PENDING"

	envReconcileInterval   = "OMS_RECONCILE_INTERVAL"
	envReconcileStaleAfter = "OMS_RECONCILE_STALE_AFTER"
	envReconcileBatchSize  = "OMS_RECONCILE_BATCH_SIZE"

	envHTTPRateLimit    = "OMS_HTTP_RATE_LIMIT"
	envHTTPRateBurst    = "OMS_HTTP_RATE_BURST"
	envCORSAllowOrigins = "OMS_CORS_ALLOW_ORIGINS"

	envLogLevel  = "OMS_LOG_LEVEL"
	envLogFormat = "OMS_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

func osLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не валят запуск: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}
	str := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}

	if v, ok := str(envHTTPAddr); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := str(envGRPCAddr); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := str(envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := str(envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := str(envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := str(envCurrency); ok {
		cfg.Currency = domain.Currency(strings.ToUpper(v))
	}
	if v, ok := str(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := str(envKafkaClientID); ok {
		cfg.KafkaClientID = v
	}
	if v, ok := str(envKafkaTopic); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := lookup(envKafkaDLQTopic); ok {
		// Пустое значение выключает DLQ.
		cfg.KafkaDLQTopic = strings.TrimSpace(v)
	}
	if v, ok := str(envCORSAllowOrigins); ok {
		cfg.CORSAllowOrigins = splitList(v)
	}

	boolVar := func(key string, target *bool) {
		if v, ok := str(key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, v, err)
				return
			}
			*target = parsed
		}
	}
	intVar := func(key string, target *int, valid func(int) bool, rule string) {
		if v, ok := str(key); ok {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				warn(key, v, err)
				return
			}
			*target = parsed
		}
	}
	durationVar := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := str(key); ok {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, v, err)
				return
			}
			*target = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	boolVar(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolVar(envAllowMockPayments, &cfg.AllowMockPayments)
	intVar(envOrderNumberAttempts, &cfg.OrderNumberAttempts, positive, "must be > 0")

	durationVar(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	intVar(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	intVar(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	durationVar(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	intVar(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	durationVar(envReconcileInterval, &cfg.ReconcileInterval, positiveDuration, "must be > 0")
	durationVar(envReconcileStaleAfter, &cfg.ReconcileStaleAfter, positiveDuration, "must be > 0")
	intVar(envReconcileBatchSize, &cfg.ReconcileBatchSize, positive, "must be > 0")

	if v, ok := str(envHTTPRateLimit); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			warn(envHTTPRateLimit, v, err)
		case parsed < 0:
			warn(envHTTPRateLimit, v, fmt.Errorf("must be >= 0"))
		default:
			cfg.HTTPRateLimit = parsed
		}
	}
	intVar(envHTTPRateBurst, &cfg.HTTPRateBurst, positive, "must be > 0")

	return cfg, warnings
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
