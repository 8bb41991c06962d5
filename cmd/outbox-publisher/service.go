package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/tracing"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxPollDelay        = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type dispatchRecorder interface {
	IncDispatch(eventType, outcome string)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxStore
	Registry         eventResolver
	PublisherFactory publisherFactory
	DLQRepository    deadLetterStore
	Metrics          dispatchRecorder
}

type settings struct {
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func settingsFrom(cfg config.OutboxConfig) settings {
	return settings{
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:        positiveOr(time.Duration(cfg.PollIntervalMS)*time.Millisecond, defaultPollInterval),
	}
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Service drains outbox_events into Pub/Sub. Every claimed row ends a batch
// published, scheduled for retry or copied to the dead-letter table.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	pubsub   pubSubClient
	events   outboxStore
	dlq      deadLetterStore
	resolver eventResolver
	topics   publisherFactory
	metrics  dispatchRecorder
	tracer   trace.Tracer
	settings settings
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox repository", params.Repository == nil},
		{"event registry", params.Registry == nil},
		{"dlq repository", params.DLQRepository == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	topics := params.PublisherFactory
	if topics == nil {
		topics = gcpPublishers(params.PubSub)
	}

	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		pubsub:   params.PubSub,
		events:   params.Repository,
		dlq:      params.DLQRepository,
		resolver: params.Registry,
		topics:   topics,
		metrics:  params.Metrics,
		tracer:   otel.Tracer(tracing.InstrumentationName),
		settings: settingsFrom(params.Config.Outbox),
	}, nil
}

// ready pings the database and Pub/Sub concurrently.
func (s *Service) ready(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		g.Go(func() error {
			if err := ping(gctx); err != nil {
				s.logg.Error(ctx, name+" ping failed", err)
				return fmt.Errorf("%s ping failed: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	delay := pollDelay{base: s.settings.poll, max: maxPollDelay}
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		claimed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = delay.failed()
		case claimed > 0:
			// keep draining while there is a backlog
			delay.reset()
			continue
		default:
			delay.reset()
			wait = s.settings.poll
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows in one transaction and settles
// each of them. A failed publish never aborts the batch; only bookkeeping
// errors roll it back.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "outbox.publish_batch")
	defer span.End()

	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.events.FetchUnpublishedForPublish(tx, s.settings.batchSize, s.settings.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			v := s.deliver(ctx, event)
			if err := s.settle(ctx, tx, event, v); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.IncDispatch(string(event.EventType), string(v.outcome))
			}
		}
		return nil
	})
	span.SetAttributes(attribute.Int("outbox.claimed", claimed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return claimed, err
}

// pollDelay doubles the wait after each failed batch up to max.
type pollDelay struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (d *pollDelay) failed() time.Duration {
	if d.current < d.base {
		d.current = d.base
	}
	d.current = min(d.current*2, d.max)
	return d.current
}

func (d *pollDelay) reset() {
	d.current = d.base
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
