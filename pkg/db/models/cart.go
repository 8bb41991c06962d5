package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the per-user container of pending selections.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;references:ID"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem is unique per (cart, product, product item, available item).
type CartItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID          uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:1"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:2"`
	ProductItemID   uuid.UUID `gorm:"column:product_item_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:3"`
	AvailableItemID uuid.UUID `gorm:"column:available_item_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:4"`
	Quantity        int       `gorm:"column:quantity;not null;default:1"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
