package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository defines the persistence surface required by the cart service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindListing(ctx context.Context, productID, productItemID, availableItemID uuid.UUID) (*models.AvailableItem, error)
	FindLine(ctx context.Context, cartID uuid.UUID, key LineKey) (*models.CartItem, error)
	FindLineByID(ctx context.Context, cartItemID uuid.UUID) (*models.CartItem, error)
	FindLineForUser(ctx context.Context, cartItemID, userID uuid.UUID) (*models.CartItem, error)
	CreateLine(ctx context.Context, item *models.CartItem) error
	IncrementIfInStock(ctx context.Context, cartItemID uuid.UUID) (bool, error)
	Decrement(ctx context.Context, cartItemID uuid.UUID) error
	DeleteLine(ctx context.Context, cartItemID uuid.UUID) error
	ListLines(ctx context.Context, cartID uuid.UUID) ([]LineRow, error)
	ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
