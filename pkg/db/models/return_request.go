package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ReturnRequest is a buyer's request to send back part of a delivered order.
type ReturnRequest struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	UserID            uuid.UUID                 `gorm:"column:user_id;type:uuid;not null"`
	Status            enums.ReturnRequestStatus `gorm:"column:status;type:text;not null;default:'REVIEWING'"`
	Reason            string                    `gorm:"column:reason;type:text;not null"`
	RefundID          *string                   `gorm:"column:refund_id;type:text"`
	RefundAmountCents *int64                    `gorm:"column:refund_amount_cents"`
	ResolvedAt        *time.Time                `gorm:"column:resolved_at"`
	Items             []ReturnItem              `gorm:"foreignKey:ReturnRequestID;references:ID"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// ReturnItem binds an order item and the quantity being returned.
type ReturnItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReturnRequestID uuid.UUID `gorm:"column:return_request_id;type:uuid;not null;index"`
	OrderItemID     uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *ReturnItem) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
