package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// LineSummary is one order line as shown in a notification.
type LineSummary struct {
	OrderItemID    uuid.UUID `json:"order_item_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// OrderNotification targets the buyer of an order.
type OrderNotification struct {
	OrderID       uuid.UUID         `json:"order_id"`
	Recipient     string            `json:"recipient"`
	RecipientName string            `json:"recipient_name,omitempty"`
	Status        enums.OrderStatus `json:"status"`
	TrackingID    string            `json:"tracking_id,omitempty"`
	OrderDate     time.Time         `json:"order_date"`
	Items         []LineSummary     `json:"items"`
	SubtotalCents int64             `json:"subtotal_cents"`
	FeesCents     int64             `json:"fees_cents"`
	TotalCents    int64             `json:"total_cents"`
	Reason        string            `json:"reason,omitempty"`
}

// StoreNotification targets one seller whose items are on an order.
type StoreNotification struct {
	OrderID    uuid.UUID     `json:"order_id"`
	StoreID    uuid.UUID     `json:"store_id"`
	StoreName  string        `json:"store_name"`
	Recipient  string        `json:"recipient"`
	OrderDate  time.Time     `json:"order_date"`
	Items      []LineSummary `json:"items"`
	TotalCents int64         `json:"total_cents"`
	Reason     string        `json:"reason,omitempty"`
}

// ReturnNotification targets the buyer of a return request.
type ReturnNotification struct {
	OrderID         uuid.UUID                 `json:"order_id"`
	ReturnRequestID uuid.UUID                 `json:"return_request_id"`
	Recipient       string                    `json:"recipient"`
	RecipientName   string                    `json:"recipient_name,omitempty"`
	Status          enums.ReturnRequestStatus `json:"status"`
	Reason          string                    `json:"reason,omitempty"`
	Items           []LineSummary             `json:"items"`
	RefundCents     int64                     `json:"refund_cents"`
}
