package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// ItemInput selects an order item to return. A nil Quantity returns the
// whole ordered quantity.
type ItemInput struct {
	OrderItemID uuid.UUID `json:"orderItemId" validate:"required"`
	Quantity    *int      `json:"quantity,omitempty" validate:"omitempty,min=1"`
}

// RequestInput is the buyer's return request body.
type RequestInput struct {
	Items  []ItemInput `json:"items" validate:"required,min=1,dive"`
	Reason string      `json:"reason" validate:"required,max=1000"`
}

type ReturnItemView struct {
	OrderItemID    uuid.UUID `json:"order_item_id"`
	StoreID        uuid.UUID `json:"store_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

type ReturnRequestView struct {
	ID                uuid.UUID                 `json:"id"`
	OrderID           uuid.UUID                 `json:"order_id"`
	Status            enums.ReturnRequestStatus `json:"status"`
	Reason            string                    `json:"reason"`
	Items             []ReturnItemView          `json:"items"`
	TotalCents        int64                     `json:"total_cents"`
	RefundID          *string                   `json:"refund_id,omitempty"`
	RefundAmountCents *int64                    `json:"refund_amount_cents,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
	ResolvedAt        *time.Time                `json:"resolved_at,omitempty"`
}

func newReturnRequestView(req models.ReturnRequest, orderItems []models.OrderItem) ReturnRequestView {
	byID := make(map[uuid.UUID]models.OrderItem, len(orderItems))
	for _, item := range orderItems {
		byID[item.ID] = item
	}

	view := ReturnRequestView{
		ID:                req.ID,
		OrderID:           req.OrderID,
		Status:            req.Status,
		Reason:            req.Reason,
		Items:             make([]ReturnItemView, 0, len(req.Items)),
		RefundID:          req.RefundID,
		RefundAmountCents: req.RefundAmountCents,
		CreatedAt:         req.CreatedAt,
		ResolvedAt:        req.ResolvedAt,
	}
	for _, ri := range req.Items {
		item := byID[ri.OrderItemID]
		line := money.LineTotalCents(item.UnitPrice, ri.Quantity)
		view.Items = append(view.Items, ReturnItemView{
			OrderItemID:    ri.OrderItemID,
			StoreID:        item.StoreID,
			ProductName:    item.ProductName,
			Quantity:       ri.Quantity,
			UnitPriceCents: money.ToCents(item.UnitPrice),
			LineTotalCents: line,
		})
		view.TotalCents += line
	}
	return view
}
