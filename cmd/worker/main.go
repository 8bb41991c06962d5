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

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/tracing"
)

const (
	serviceName = "worker"
	mailScope   = "order-mail"
)

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
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"instance_id":  instance.GetID(),
		"subscription": cfg.PubSub.NotificationSubscription,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

// run consumes notification messages until ctx ends. Everything opened here
// is closed on return, newest first.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if cerr := cleanup[i](); cerr != nil {
				logg.Error(context.Background(), "worker cleanup", cerr)
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	cleanup = append(cleanup, redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	cleanup = append(cleanup, pubsubClient.Close)

	consumer, err := newConsumer(cfg, logg, redisClient, pubsubClient)
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Logger:               logg,
		InstanceID:           instance.GetID(),
		NotificationConsumer: consumer,
		Dependencies: map[string]pinger{
			"redis":  redisClient.Ping,
			"pubsub": pubsubClient.Ping,
		},
	})
	if err != nil {
		return fmt.Errorf("create worker service: %w", err)
	}

	logg.Info(ctx, "starting notification worker")
	return service.Run(ctx)
}

// newConsumer builds the mail consumer. Its delivery guard is scoped apart
// from the Stripe webhook guard so an event id can never collide across them.
func newConsumer(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, pubsubClient *pubsub.Client) (*notifications.Consumer, error) {
	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return nil, fmt.Errorf("build event registry: %w", err)
	}
	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("create idempotency manager: %w", err)
	}
	guard, err := manager.Scope(mailScope)
	if err != nil {
		return nil, fmt.Errorf("scope %s guard: %w", mailScope, err)
	}

	consumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Subscription: pubsubClient.NotificationSubscription(),
		Registry:     events,
		Idempotency:  guard,
		Mailer:       notifications.NewLogMailer(logg),
		From:         cfg.Mail.DefaultFrom,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification consumer: %w", err)
	}
	return consumer, nil
}
