package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// User is the buyer, seller or admin identity. Credentials live with the
// identity provider; only the attributes orders need are stored here.
type User struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email     string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName string     `gorm:"column:first_name;type:text;not null"`
	LastName  string     `gorm:"column:last_name;type:text;not null"`
	Role      enums.Role `gorm:"column:role;type:text;not null;default:'USER'"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}
