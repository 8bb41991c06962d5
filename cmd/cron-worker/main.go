package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/tracing"
)

const serviceName = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance_id": instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if cerr := cleanup[i](); cerr != nil {
				logg.Error(context.Background(), "cron worker cleanup", cerr)
			}
		}
	}()

	tracer, err := tracing.Setup(ctx, tracing.Options{
		ServiceName: "storefront-" + serviceName,
		InstanceID:  instance.GetID(),
		Config:      cfg.Tracing,
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	cleanup = append(cleanup, func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracer.Shutdown(flushCtx)
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	cleanup = append(cleanup, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	cleanup = append(cleanup, redisClient.Close)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ordersService, err := newOrdersService(ctx, cfg, logg, dbClient, outboxRepo)
	if err != nil {
		return err
	}
	jobs, err := newJobs(cfg, logg, ordersService, outboxRepo)
	if err != nil {
		return err
	}

	// Twice the interval so a slow cycle keeps the lease until it finishes.
	lock, err := cron.NewRedisLock(redisClient, redisClient.Key(redis.KindLock, lockName(cfg.App.Env)), 2*cfg.Orders.CronInterval)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Orders.CronInterval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// newOrdersService wires the order transitions the expiry job drives: an
// expired order closes its Stripe session and notifies the buyer.
func newOrdersService(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxRepo *outbox.Repository) (*orders.Service, error) {
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap stripe: %w", err)
	}

	gateway := pkgstripe.NewGateway(stripeClient)
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	refundService, err := refunds.NewService(gateway, orderMetrics, logg)
	if err != nil {
		return nil, fmt.Errorf("create refund service: %w", err)
	}
	notifier, err := notifications.NewNotifier(dbClient, notifications.NewRepository(dbClient.DB()), outbox.NewService(outboxRepo, logg), logg)
	if err != nil {
		return nil, fmt.Errorf("create notifier: %w", err)
	}

	repo := orders.NewRepository(dbClient.DB())
	svc, err := orders.NewService(orders.ServiceParams{
		Repo:     repo,
		Tx:       dbClient,
		Machine:  orders.NewStateMachine(repo, orderMetrics),
		Ledger:   inventory.NewLedger(orderMetrics),
		Refunds:  refundService,
		Sessions: gateway,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create orders service: %w", err)
	}
	return svc, nil
}

func newJobs(cfg *config.Config, logg *logger.Logger, ordersService *orders.Service, outboxRepo *outbox.Repository) (*cron.Registry, error) {
	expiry, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:     logg,
		Orders:     ordersService,
		PendingTTL: cfg.Orders.PendingTTL,
		BatchSize:  cfg.Orders.ExpiryBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("create order ttl job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox retention job: %w", err)
	}
	return cron.NewRegistry(expiry, retention), nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}
