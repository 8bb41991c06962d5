package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// LineKey identifies a cart line by what was selected.
type LineKey struct {
	ProductID       uuid.UUID `json:"product_id" validate:"required"`
	ProductItemID   uuid.UUID `json:"product_item_id" validate:"required"`
	AvailableItemID uuid.UUID `json:"available_item_id" validate:"required"`
}

// LineRow is a cart line joined with its listing, as read for display and
// checkout.
type LineRow struct {
	ID              uuid.UUID
	CartID          uuid.UUID
	StoreID         uuid.UUID
	ProductID       uuid.UUID
	ProductItemID   uuid.UUID
	AvailableItemID uuid.UUID
	ProductName     string
	ProductItemName string
	Size            string
	ImageURL        *string
	Quantity        int
	NumInStock      int
	CurrentPrice    decimal.Decimal
}

// CartItemDTO is the API view of a single cart line.
type CartItemDTO struct {
	ID              uuid.UUID `json:"id"`
	CartID          uuid.UUID `json:"cart_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductItemID   uuid.UUID `json:"product_item_id"`
	AvailableItemID uuid.UUID `json:"available_item_id"`
	Quantity        int       `json:"quantity"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// QuantityResult is returned by ChangeQuantity. Removed is set when the line
// was deleted.
type QuantityResult struct {
	CartItemID uuid.UUID `json:"cart_item_id"`
	Quantity   int       `json:"quantity"`
	Removed    bool      `json:"removed"`
}

// CartLineView is one line of GetCart.
type CartLineView struct {
	ID              uuid.UUID `json:"id"`
	StoreID         uuid.UUID `json:"store_id"`
	ProductID       uuid.UUID `json:"product_id"`
	ProductItemID   uuid.UUID `json:"product_item_id"`
	AvailableItemID uuid.UUID `json:"available_item_id"`
	ProductName     string    `json:"product_name"`
	Variant         string    `json:"variant"`
	Size            string    `json:"size"`
	ImageURL        *string   `json:"image_url,omitempty"`
	Quantity        int       `json:"quantity"`
	InStock         int       `json:"in_stock"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	LineTotalCents  int64     `json:"line_total_cents"`
}

// CartView is the caller's cart with totals.
type CartView struct {
	ID            *uuid.UUID     `json:"id,omitempty"`
	Items         []CartLineView `json:"items"`
	TotalItems    int            `json:"total_items"`
	SubtotalCents int64          `json:"subtotal_cents"`
}

func newCartItemDTO(item models.CartItem) CartItemDTO {
	return CartItemDTO{
		ID:              item.ID,
		CartID:          item.CartID,
		ProductID:       item.ProductID,
		ProductItemID:   item.ProductItemID,
		AvailableItemID: item.AvailableItemID,
		Quantity:        item.Quantity,
		UpdatedAt:       item.UpdatedAt,
	}
}

func newCartView(cartID *uuid.UUID, rows []LineRow) CartView {
	view := CartView{ID: cartID, Items: make([]CartLineView, 0, len(rows))}
	for _, row := range rows {
		line := CartLineView{
			ID:              row.ID,
			StoreID:         row.StoreID,
			ProductID:       row.ProductID,
			ProductItemID:   row.ProductItemID,
			AvailableItemID: row.AvailableItemID,
			ProductName:     row.ProductName,
			Variant:         row.ProductItemName,
			Size:            row.Size,
			ImageURL:        row.ImageURL,
			Quantity:        row.Quantity,
			InStock:         row.NumInStock,
			UnitPriceCents:  money.ToCents(row.CurrentPrice),
			LineTotalCents:  money.LineTotalCents(row.CurrentPrice, row.Quantity),
		}
		view.TotalItems += line.Quantity
		view.SubtotalCents += line.LineTotalCents
		view.Items = append(view.Items, line)
	}
	return view
}
