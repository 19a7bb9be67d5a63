package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/rentorders/internal/health"
	"github.com/vladislavdragonenkov/rentorders/internal/httpapi"
	"github.com/vladislavdragonenkov/rentorders/internal/metrics"
	"github.com/vladislavdragonenkov/rentorders/internal/service/order"
	"github.com/vladislavdragonenkov/rentorders/internal/service/outbox"
	"github.com/vladislavdragonenkov/rentorders/internal/service/reconcile"
	"github.com/vladislavdragonenkov/rentorders/internal/version"
)

// Run поднимает HTTP API, метрики, gRPC health и фоновые воркеры и ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	orderMetrics := metrics.NewOrderMetrics()
	httpMetrics := metrics.NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)

	// Без Kafka события некому публиковать, поэтому outbox не ведётся.
	// Ошибка подключения уже залогирована, сервис продолжает работу без Kafka.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	defer closeKafka(kafkaProducer, logger)
	publisher, dlqPublisher := outboxPublishers(kafkaProducer, cfg)

	serviceOpts := []order.Option{
		order.WithLogger(logger.WithField("layer", "order-service")),
		order.WithMetrics(orderMetrics),
		order.WithCurrency(cfg.Currency),
		order.WithOrderNumberAttempts(cfg.OrderNumberAttempts),
	}
	reconcileOpts := []reconcile.Option{
		reconcile.WithLogger(logger.WithField("component", "reconcile-worker")),
		reconcile.WithMetrics(orderMetrics),
		reconcile.WithInterval(cfg.ReconcileInterval),
		reconcile.WithStaleAfter(cfg.ReconcileStaleAfter),
		reconcile.WithBatchSize(cfg.ReconcileBatchSize),
	}
	if publisher != nil {
		serviceOpts = append(serviceOpts, order.WithOutbox(deps.outboxRepo))
		reconcileOpts = append(reconcileOpts, reconcile.WithOutbox(deps.outboxRepo))
	}

	orderService := order.NewService(deps.orders, deps.attempts, deps.gateway, deps.numbers, serviceOpts...)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if publisher != nil {
		healthHandler.RegisterOptional("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending, 0))
	}

	router := httpapi.NewRouter(orderService,
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithMetrics(httpMetrics),
		httpapi.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
		httpapi.WithAllowOrigins(cfg.CORSAllowOrigins...),
		httpapi.WithCurrency(cfg.Currency),
	)

	errCh := make(chan error, 2)
	apiSrv, err := startAPIServer(cfg.HTTPAddr, router, logger, errCh)
	if err != nil {
		return fmt.Errorf("listen http api: %w", err)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcSrv := newGRPCHealthServer(logger)
	if err := grpcSrv.serve(cfg.GRPCAddr, logger, errCh); err != nil {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcSrv.SetServing(true)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	if publisher != nil {
		outboxWorker := outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics()),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			outboxWorker.Run(workersCtx)
		}()
	}
	reconcileWorker := reconcile.NewWorker(deps.orders, deps.attempts, deps.gateway, reconcileOpts...)
	workers.Add(1)
	go func() {
		defer workers.Done()
		reconcileWorker.Run(workersCtx)
	}()

	logger.WithFields(version.Fields()).WithFields(log.Fields{
		"storage": cfg.StorageDriver,
		"kafka":   publisher != nil,
	}).Info("order service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	grpcSrv.stop(logger)
	shutdownHTTP(apiSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	stopWorkers()
	workers.Wait()

	return runErr
}
