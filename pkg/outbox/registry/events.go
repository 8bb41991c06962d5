// Package registry maps outbox event types to their topic and payload schema.
// The publisher resolves rows through it before sending and the notification
// consumer decodes Pub/Sub messages with the same descriptors.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type schema struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
}

var (
	orderSchema  = schema{aggregate: enums.AggregateOrder, payload: func() any { return &payloads.OrderNotification{} }}
	storeSchema  = schema{aggregate: enums.AggregateOrder, payload: func() any { return &payloads.StoreNotification{} }}
	returnSchema = schema{aggregate: enums.AggregateReturnRequest, payload: func() any { return &payloads.ReturnNotification{} }}
)

func schemaFor(eventType enums.OutboxEventType) (schema, bool) {
	switch eventType {
	case enums.EventOrderConfirmed, enums.EventOrderCancelled, enums.EventOrderStatusChanged, enums.EventOrderFailed:
		return orderSchema, true
	case enums.EventStoreOrderReceived, enums.EventStoreOrderCancelled, enums.EventStoreReturnAccepted:
		return storeSchema, true
	case enums.EventReturnRequested, enums.EventReturnAccepted, enums.EventReturnDeclined:
		return returnSchema, true
	}
	return schema{}, false
}

// NewEventRegistry registers every known event type on the notification
// topic and fails when one of them has no payload schema.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.NotificationTopic)
	if topic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	types := enums.OutboxEventTypes()
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(types))}
	for _, eventType := range types {
		s, ok := schemaFor(eventType)
		if !ok {
			return nil, fmt.Errorf("no payload schema for event type %s", eventType)
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  s.aggregate,
			Topic:          topic,
			PayloadFactory: s.payload,
		}
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is permanent: the row bytes never change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	envelope, payload, err := DecodeEnvelope(desc, event.Payload)
	if err != nil {
		return nil, err
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, permanent("envelope event type %s does not match row %s", envelope.EventType, event.EventType)
	}
	if event.ID != uuid.Nil {
		if id, err := uuid.Parse(envelope.EventID); err != nil || id != event.ID {
			return nil, permanent("envelope event id %q does not match row %s", envelope.EventID, event.ID)
		}
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// DecodeEnvelope parses a stored or delivered envelope into the descriptor's
// payload type.
func DecodeEnvelope(desc EventDescriptor, raw []byte) (outbox.PayloadEnvelope, any, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, nil, permanent("decode envelope: %w", err)
	}
	if !envelope.HasData() {
		return envelope, nil, permanent("payload missing for %s", desc.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return envelope, nil, permanent("decode %s payload: %w", desc.EventType, err)
	}
	return envelope, payload, nil
}
