package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Ref ties a stock movement to the order line that caused it.
type Ref struct {
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	Reason      enums.StockMovementReason
}

// Line is one (available item, quantity) pair to reserve or release.
type Line struct {
	AvailableItemID uuid.UUID
	Quantity        int
	Ref             Ref
}

// ShortLine describes a line that could not be reserved.
type ShortLine struct {
	AvailableItemID uuid.UUID `json:"available_item_id"`
	OrderItemID     uuid.UUID `json:"order_item_id,omitempty"`
	Requested       int       `json:"requested"`
}

type conflictRecorder interface {
	IncStockConflict(operation string)
}

// Ledger mutates available item stock. Every method runs on the caller's
// transaction; the caller's order status transition guards against applying
// the same reservation twice.
type Ledger struct {
	metrics conflictRecorder
}

// NewLedger builds a ledger. metrics may be nil.
func NewLedger(metrics conflictRecorder) *Ledger {
	return &Ledger{metrics: metrics}
}

// Reserve decrements stock by qty only if at least qty units remain.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, availableItemID uuid.UUID, qty int, ref Ref) error {
	if err := validate(tx, availableItemID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE available_items SET num_in_stock = num_in_stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND num_in_stock >= ?`,
		qty, availableItemID, qty,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		if l.metrics != nil {
			l.metrics.IncStockConflict("reserve")
		}
		return l.missingOrShort(ctx, tx, availableItemID, qty, ref)
	}

	return recordMovement(ctx, tx, availableItemID, -qty, ref)
}

// Release adds qty units back to stock.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, availableItemID uuid.UUID, qty int, ref Ref) error {
	if err := validate(tx, availableItemID, qty); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE available_items SET num_in_stock = num_in_stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qty, availableItemID,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	if res.RowsAffected == 0 {
		if l.metrics != nil {
			l.metrics.IncStockConflict("release")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "available item not found").
			WithDetails(map[string]any{"available_item_id": availableItemID})
	}

	return recordMovement(ctx, tx, availableItemID, qty, ref)
}

// ReserveLines reserves every line or fails on the first short one. The
// caller must roll back its transaction on error.
func (l *Ledger) ReserveLines(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, line := range lines {
		if err := l.Reserve(ctx, tx, line.AvailableItemID, line.Quantity, line.Ref); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseLines releases every line.
func (l *Ledger) ReleaseLines(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, line := range lines {
		if err := l.Release(ctx, tx, line.AvailableItemID, line.Quantity, line.Ref); err != nil {
			return err
		}
	}
	return nil
}

// LinesForOrderItems maps order items to ledger lines with the given reason.
func LinesForOrderItems(items []models.OrderItem, reason enums.StockMovementReason) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			AvailableItemID: item.AvailableItemID,
			Quantity:        item.Quantity,
			Ref: Ref{
				OrderID:     item.OrderID,
				OrderItemID: item.ID,
				Reason:      reason,
			},
		})
	}
	return lines
}

func (l *Ledger) missingOrShort(ctx context.Context, tx *gorm.DB, availableItemID uuid.UUID, qty int, ref Ref) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.AvailableItem{}).Where("id = ?", availableItemID).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load available item")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "available item not found").
			WithDetails(map[string]any{"available_item_id": availableItemID})
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails([]ShortLine{{AvailableItemID: availableItemID, OrderItemID: ref.OrderItemID, Requested: qty}})
}

func validate(tx *gorm.DB, availableItemID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock mutation requires a transaction")
	}
	if availableItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "available item id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	return nil
}

func recordMovement(ctx context.Context, tx *gorm.DB, availableItemID uuid.UUID, delta int, ref Ref) error {
	movement := models.StockMovement{
		AvailableItemID: availableItemID,
		Delta:           delta,
		Reason:          ref.Reason,
	}
	if ref.OrderID != uuid.Nil {
		orderID := ref.OrderID
		movement.OrderID = &orderID
	}
	if ref.OrderItemID != uuid.Nil {
		itemID := ref.OrderItemID
		movement.OrderItemID = &itemID
	}
	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
	}
	return nil
}
