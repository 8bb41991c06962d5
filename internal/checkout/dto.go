package checkout

import "github.com/google/uuid"

// Result is what the buyer needs to continue to the hosted payment page.
type Result struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"order_id"`
}

// ShortLine is a cart line asking for more than is in stock.
type ShortLine struct {
	CartItemID      uuid.UUID `json:"cart_item_id"`
	AvailableItemID uuid.UUID `json:"available_item_id"`
	Requested       int       `json:"requested"`
	InStock         int       `json:"in_stock"`
}
