package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

// verdict is what happened to one row before any bookkeeping is written.
type verdict struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
	eventID string
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// deliver resolves and publishes one row. Undecodable rows and non-retryable
// publish errors go straight to the dead-letter table; transient errors are
// retried until the row runs out of attempts.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) verdict {
	resolved, err := s.resolver.Resolve(event)
	if err != nil {
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonUndecodable, err: err}
	}

	v := verdict{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}
	err = s.publish(ctx, event, resolved)
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		v.outcome = outcomePublished
	case errors.As(err, &nonRetry):
		v.outcome, v.reason, v.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= s.settings.maxAttempts:
		v.outcome, v.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		v.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		v.outcome, v.err = outcomeRetry, err
	}
	return v
}

// settle writes the verdict back to the row inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, v verdict) error {
	logCtx := s.logg.WithFields(ctx, logFields(event, v))
	switch v.outcome {
	case outcomePublished:
		if err := s.events.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", v.err.Error()), "outbox publish failed, will retry")
		if err := s.events.MarkFailedTx(tx, event.ID, v.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	default:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        v.err.Error(),
			"error_reason": v.reason,
			"replayable":   v.reason.Replayable(),
		}), "outbox event will not be retried")
		msg := v.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   v.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.events.MarkTerminalTx(tx, event.ID, v.err, s.settings.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
	}
	return nil
}

// publish sends the stored envelope unchanged as the message body and waits
// for the server ack.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

// messageAttributes lets subscribers route and dedupe without decoding the body.
func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	env := resolved.Envelope
	return map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		"version":        strconv.Itoa(env.Version),
	}
}

func logFields(event models.OutboxEvent, v verdict) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"outcome":        v.outcome,
	}
	if v.outcome == outcomeRetry {
		fields["attempt_count"] = event.AttemptCount + 1
	}
	if v.eventID != "" {
		fields["event_id"] = v.eventID
	}
	if v.topic != "" {
		fields["topic"] = v.topic
	}
	return fields
}

// gcpPublishers adapts the Pub/Sub client's cached publishers to the
// publisher interface.
func gcpPublishers(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
