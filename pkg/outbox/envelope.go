package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CurrentEnvelopeVersion is stamped on events whose producer left Version unset.
const CurrentEnvelopeVersion = 1

// ActorRef identifies who triggered the event: the buyer cancelling, the admin
// approving a return. Webhook and cron driven events carry no actor.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType,omitempty"`
	AggregateID string                `json:"aggregateId,omitempty"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Actor       *ActorRef             `json:"actor,omitempty"`
	Data        json.RawMessage       `json:"data"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e PayloadEnvelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func newEnvelope(event DomainEvent, now time.Time) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	version := event.Version
	if version == 0 {
		version = CurrentEnvelopeVersion
	}
	return PayloadEnvelope{
		Version:     version,
		EventID:     uuid.NewString(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID.String(),
		OccurredAt:  occurredAt.UTC(),
		Actor:       event.Actor,
		Data:        data,
	}, nil
}
