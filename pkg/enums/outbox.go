package enums

import (
	"fmt"
	"slices"
	"strings"
)

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateReturnRequest OutboxAggregateType = "return_request"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateReturnRequest
}

// OutboxEventType names a notification trigger written to the outbox. Buyer
// events and store events are separate types because each store of an order
// receives its own message.
type OutboxEventType string

const (
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderFailed        OutboxEventType = "order_failed"
	EventReturnRequested    OutboxEventType = "return_requested"
	EventReturnAccepted     OutboxEventType = "return_accepted"
	EventReturnDeclined     OutboxEventType = "return_declined"

	EventStoreOrderReceived  OutboxEventType = "store_order_received"
	EventStoreOrderCancelled OutboxEventType = "store_order_cancelled"
	EventStoreReturnAccepted OutboxEventType = "store_return_accepted"
)

var (
	buyerEvents = []OutboxEventType{
		EventOrderConfirmed,
		EventOrderCancelled,
		EventOrderStatusChanged,
		EventOrderFailed,
		EventReturnRequested,
		EventReturnAccepted,
		EventReturnDeclined,
	}
	storeEvents = []OutboxEventType{
		EventStoreOrderReceived,
		EventStoreOrderCancelled,
		EventStoreReturnAccepted,
	}
)

// OutboxEventTypes lists every known event type, buyer events first.
func OutboxEventTypes() []OutboxEventType {
	return slices.Concat(buyerEvents, storeEvents)
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(buyerEvents, e) || slices.Contains(storeEvents, e)
}

// ForStore reports whether the event is addressed to a store owner rather
// than the buyer.
func (e OutboxEventType) ForStore() bool {
	return slices.Contains(storeEvents, e)
}

// ParseOutboxEventType accepts the wire name in any case.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	candidate := OutboxEventType(strings.ToLower(strings.TrimSpace(value)))
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return candidate, nil
}
