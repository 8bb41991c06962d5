package enums

import "fmt"

// OrderStatus tracks the lifecycle of a marketplace order.
type OrderStatus string

const (
	OrderStatusProcessing       OrderStatus = "PROCESSING"
	OrderStatusConfirmed        OrderStatus = "CONFIRMED"
	OrderStatusReadyForShipping OrderStatus = "READYFORSHIPPING"
	OrderStatusShipped          OrderStatus = "SHIPPED"
	OrderStatusOutForDelivery   OrderStatus = "OUTFORDELIVERY"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
	OrderStatusReturnRequested  OrderStatus = "RETURNREQUESTED"
	OrderStatusRefunded         OrderStatus = "REFUNDED"
	OrderStatusFailed           OrderStatus = "FAILED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusReadyForShipping,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturnRequested,
	OrderStatusRefunded,
	OrderStatusFailed,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves the status.
// DELIVERED is not terminal because a return may still be requested.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
