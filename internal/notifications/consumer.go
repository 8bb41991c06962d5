package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type descriptorLookup interface {
	Descriptor(eventType enums.OutboxEventType) (registry.EventDescriptor, bool)
}

type processedGuard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Registry     descriptorLookup
	Idempotency  processedGuard
	Mailer       Mailer
	From         string
	Logger       *logger.Logger
}

// Consumer reads notification events from Pub/Sub and emails each recipient
// once per event.
type Consumer struct {
	subscription *pubsub.Subscriber
	registry     descriptorLookup
	idempotency  processedGuard
	mailer       Mailer
	from         string
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		registry:     params.Registry,
		idempotency:  params.Idempotency,
		mailer:       params.Mailer,
		from:         params.From,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("notification subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	parsed, err := enums.ParseOutboxEventType(eventType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event type")
		return processResult{ack: true}
	}
	desc, ok := c.registry.Descriptor(parsed)
	if !ok {
		c.logg.Info(logCtx, "skipping unsupported event")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "store_recipient", parsed.ForStore())

	envelope, payload, err := registry.DecodeEnvelope(desc, data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithEventID(logCtx, eventID.String())

	email, err := Render(desc.EventType, payload, c.from)
	if err != nil {
		c.logg.Error(logCtx, "failed to render email", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMark(ctx, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.mailer.Send(ctx, email); err != nil {
		c.logg.Error(logCtx, "email delivery failed", err)
		_ = c.idempotency.Delete(ctx, eventID.String())
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithField(logCtx, "mail_to", email.To), "notification delivered")
	return processResult{ack: true}
}
