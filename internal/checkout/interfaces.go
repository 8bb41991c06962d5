package checkout

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Repository persists the order a checkout creates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
}

// cartReader is the read side of the cart the checkout snapshots.
type cartReader interface {
	FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ListLines(ctx context.Context, cartID uuid.UUID) ([]cart.LineRow, error)
}

// PaymentGateway opens hosted payment sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutRequest) (*pkgstripe.CheckoutSession, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// statusTransitioner moves an order along its status graph.
type statusTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor orders.Actor, updates map[string]any) error
}
