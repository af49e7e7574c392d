package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopflow-backend/internal/cron"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/instance"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/metrics"
	"github.com/angelmondragon/shopflow-backend/pkg/migrate"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, bootLog *logger.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, bootLog, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, bootLog, "redis", redisClient.Close)

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"jobs":        registry.Names(),
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")
	err = service.Run(ctx)
	logg.Info(ctx, "cron worker shutting down")
	return err
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	registry, err := cron.NewRegistry()
	if err != nil {
		return nil, err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetention,
		BatchSize:  cfg.Cron.RetentionBatch,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}

	if !cfg.MoMo.Enabled() {
		logg.Warn(context.Background(), "momo credentials not set; payment_reconcile job disabled")
		return registry, nil
	}

	momoClient, err := momo.NewClient(cfg.MoMo, logg)
	if err != nil {
		return nil, err
	}
	markers, err := localstate.NewRedisStore(redisClient, cfg.Session.TTL, logg)
	if err != nil {
		return nil, err
	}
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, events, logg)
	if err != nil {
		return nil, err
	}
	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:       ordersSvc,
		Transactions: payments.NewTransactionRepository(dbClient.DB()),
		Tx:           dbClient,
		Outbox:       events,
		Provider:     payments.NewMoMoProvider(momoClient),
		Markers:      markers,
		Budget:       payments.BudgetFromConfig(cfg.Reconciler),
		Metrics:      metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewPaymentReconcileJob(logg, reconciler)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(sweep); err != nil {
		return nil, err
	}
	return registry, nil
}

// lockName scopes the leader lock per environment.
func lockName(cfg *config.Config) string {
	env := cmp.Or(cfg.App.Env, "local")
	return cfg.Cron.LockName + ":" + env
}
