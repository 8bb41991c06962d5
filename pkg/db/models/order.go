package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is one buyer checkout, possibly spanning several stores.
// TrackingID, PaymentReference and Address are written once, at payment
// confirmation.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PROCESSING';index"`
	TrackingID        *string           `gorm:"column:tracking_id;type:text;uniqueIndex"`
	Address           *string           `gorm:"column:address;type:text"`
	PaymentReference  *string           `gorm:"column:payment_reference;type:text;uniqueIndex"`
	CheckoutSessionID *string           `gorm:"column:checkout_session_id;type:text"`
	CustomerEmail     *string           `gorm:"column:customer_email;type:text"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is one line of an order. Store, product and available item
// references plus the unit price are copied at checkout and never change.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	StoreID          uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductItemID    uuid.UUID       `gorm:"column:product_item_id;type:uuid;not null"`
	AvailableItemID  uuid.UUID       `gorm:"column:available_item_id;type:uuid;not null"`
	ProductName      string          `gorm:"column:product_name;type:text;not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	ReadyToBeShipped bool            `gorm:"column:ready_to_be_shipped;not null;default:false"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
