package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-pos-store/internal/api"
	"github.com/safar/go-pos-store/internal/config"
	"github.com/safar/go-pos-store/internal/database"
	"github.com/safar/go-pos-store/internal/idempotency"
	"github.com/safar/go-pos-store/internal/logging"
	"github.com/safar/go-pos-store/internal/outbox"
	"github.com/safar/go-pos-store/internal/sales"
	"github.com/safar/go-pos-store/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	version, err := database.Migrate(db, database.MigrateUp)
	if err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	logger.Info("connected to database", zap.Uint("schema_version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := sales.NewService(
		sales.NewPostgresTransactor(db, cfg.Sales.TxMaxRetries),
		sales.NewPostgresReader(db),
		sales.Options{TaxRate: cfg.Sales.TaxRate, Timeout: cfg.Sales.TxTimeout},
		logger,
	)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		keys := idempotency.NewRedisStore(rdb, cfg.Redis.IdempotencyTTL)
		if err := keys.Ping(ctx); err != nil {
			logger.Warn("idempotency store unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		svc.WithDeduplicator(keys)
		logger.Info("idempotency keys enabled", zap.String("addr", cfg.Redis.Addr))
	}

	relayDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := outbox.NewKafkaPublisher(cfg.Kafka, logger)
		defer publisher.Close()

		relay := outbox.NewRelay(db, publisher, outbox.Options{
			PollInterval:    cfg.Kafka.PollInterval,
			BatchSize:       cfg.Kafka.BatchSize,
			StaleAfter:      cfg.Kafka.StaleAfter,
			RetryBackoff:    cfg.Kafka.RetryBackoff,
			MaxRetryBackoff: cfg.Kafka.MaxRetryBackoff,
			ListenDSN:       cfg.Database.URL,
		}, logger)

		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
		logger.Info("outbox relay enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		close(relayDone)
	}

	router := api.NewRouter(api.Deps{
		Sales:   svc,
		Catalog: store.NewCatalog(db),
		Health:  db.PingContext,
		Logger:  logger,
	})
	server := api.NewServer(router, cfg.Server)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		serverErr <- server.Run()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.Warn("outbox relay did not stop in time")
	}

	logger.Info("server stopped")
}
