package stripewebhook

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/internal/tracking"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor orders.Actor, updates map[string]any) error
}

type stockReserver interface {
	ReserveLines(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type trackingGenerator interface {
	Generate(ctx context.Context, lookup tracking.Lookup) (string, error)
}

type refunder interface {
	Refund(ctx context.Context, req refunds.Request) (*pkgstripe.RefundResult, error)
}

type eventRecorder interface {
	IncWebhookEvent(eventType, outcome string)
}

// Notifier receives post-commit payment outcomes.
type Notifier interface {
	OrderConfirmed(ctx context.Context, orderID uuid.UUID)
	OrderFailed(ctx context.Context, orderID uuid.UUID, reason string)
}
