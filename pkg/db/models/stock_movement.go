package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// StockMovement is the append-only audit row for every stock change.
type StockMovement struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	AvailableItemID uuid.UUID                 `gorm:"column:available_item_id;type:uuid;not null;index"`
	OrderID         *uuid.UUID                `gorm:"column:order_id;type:uuid;index"`
	OrderItemID     *uuid.UUID                `gorm:"column:order_item_id;type:uuid"`
	Delta           int                       `gorm:"column:delta;not null"`
	Reason          enums.StockMovementReason `gorm:"column:reason;type:text;not null"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
