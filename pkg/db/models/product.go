package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the catalog entry a seller lists. Catalog management happens
// elsewhere; orders only read these rows.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ProductItem is a color or variant of a product.
type ProductItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;type:text;not null"`
	ImageURL  *string   `gorm:"column:image_url;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *ProductItem) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// AvailableItem is one purchasable size of a product item with its own stock.
// NumInStock must never go below zero; it is only changed through the
// inventory ledger's conditional updates.
type AvailableItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductItemID uuid.UUID       `gorm:"column:product_item_id;type:uuid;not null;index"`
	Size          string          `gorm:"column:size;type:text;not null"`
	NumInStock    int             `gorm:"column:num_in_stock;not null;default:0"`
	OriginalPrice decimal.Decimal `gorm:"column:original_price;type:numeric(12,2);not null"`
	CurrentPrice  decimal.Decimal `gorm:"column:current_price;type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *AvailableItem) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
