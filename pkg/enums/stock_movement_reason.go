package enums

// StockMovementReason explains why an available item's stock changed.
type StockMovementReason string

const (
	StockMovementOrderConfirmed StockMovementReason = "order_confirmed"
	StockMovementOrderCancelled StockMovementReason = "order_cancelled"
	StockMovementReturnAccepted StockMovementReason = "return_accepted"
)

var validStockMovementReasons = []StockMovementReason{
	StockMovementOrderConfirmed,
	StockMovementOrderCancelled,
	StockMovementReturnAccepted,
}

func (r StockMovementReason) IsValid() bool {
	for _, candidate := range validStockMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
