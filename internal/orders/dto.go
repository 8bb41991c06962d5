package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// ListFilter narrows order listings. Zero values mean no constraint.
type ListFilter struct {
	UserID  *uuid.UUID
	StoreID *uuid.UUID
	Status  *enums.OrderStatus
}

// OrderItemView is one order line as returned by the API.
type OrderItemView struct {
	ID               uuid.UUID `json:"id"`
	StoreID          uuid.UUID `json:"store_id"`
	ProductID        uuid.UUID `json:"product_id"`
	ProductItemID    uuid.UUID `json:"product_item_id"`
	AvailableItemID  uuid.UUID `json:"available_item_id"`
	ProductName      string    `json:"product_name"`
	Quantity         int       `json:"quantity"`
	UnitPriceCents   int64     `json:"unit_price_cents"`
	LineTotalCents   int64     `json:"line_total_cents"`
	ReadyToBeShipped bool      `json:"ready_to_be_shipped"`
}

// OrderDetail is an order with its (possibly store-scoped) items.
type OrderDetail struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Status           enums.OrderStatus `json:"status"`
	TrackingID       *string           `json:"tracking_id,omitempty"`
	Address          *string           `json:"address,omitempty"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	TotalCents       int64             `json:"total_cents"`
	Items            []OrderItemView   `json:"items"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// OrderSummary is a row of an order listing.
type OrderSummary struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     enums.OrderStatus `json:"status"`
	TrackingID *string           `json:"tracking_id,omitempty"`
	TotalItems int               `json:"total_items"`
	TotalCents int64             `json:"total_cents"`
	CreatedAt  time.Time         `json:"created_at"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ReadinessResult reports the effect of marking an item ready.
type ReadinessResult struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderItemID uuid.UUID         `json:"order_item_id"`
	OrderStatus enums.OrderStatus `json:"order_status"`
	Advanced    bool              `json:"advanced"`
}

func newItemView(item models.OrderItem) OrderItemView {
	return OrderItemView{
		ID:               item.ID,
		StoreID:          item.StoreID,
		ProductID:        item.ProductID,
		ProductItemID:    item.ProductItemID,
		AvailableItemID:  item.AvailableItemID,
		ProductName:      item.ProductName,
		Quantity:         item.Quantity,
		UnitPriceCents:   money.ToCents(item.UnitPrice),
		LineTotalCents:   money.LineTotalCents(item.UnitPrice, item.Quantity),
		ReadyToBeShipped: item.ReadyToBeShipped,
	}
}

// NewOrderDetail builds the API view. keep filters items; nil keeps all.
func NewOrderDetail(order models.Order, keep func(models.OrderItem) bool) OrderDetail {
	detail := OrderDetail{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           order.Status,
		TrackingID:       order.TrackingID,
		Address:          order.Address,
		PaymentReference: order.PaymentReference,
		Items:            make([]OrderItemView, 0, len(order.Items)),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.Items {
		if keep != nil && !keep(item) {
			continue
		}
		view := newItemView(item)
		detail.TotalCents += view.LineTotalCents
		detail.Items = append(detail.Items, view)
	}
	return detail
}

func newOrderSummary(order models.Order) OrderSummary {
	summary := OrderSummary{
		ID:         order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TrackingID: order.TrackingID,
		CreatedAt:  order.CreatedAt,
	}
	for _, item := range order.Items {
		summary.TotalItems += item.Quantity
		summary.TotalCents += money.LineTotalCents(item.UnitPrice, item.Quantity)
	}
	return summary
}
