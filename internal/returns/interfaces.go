package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Repository persists return requests and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CreateRequest(ctx context.Context, req *models.ReturnRequest) error
	FindRequest(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	LatestForOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error)
	Resolve(ctx context.Context, id uuid.UUID, to enums.ReturnRequestStatus, resolvedAt time.Time, updates map[string]any) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusTransitioner interface {
	Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor orders.Actor, updates map[string]any) error
}

type stockReleaser interface {
	ReleaseLines(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type refunder interface {
	Refund(ctx context.Context, req refunds.Request) (*pkgstripe.RefundResult, error)
}

// Notifier receives post-commit return events.
type Notifier interface {
	ReturnRequested(ctx context.Context, requestID uuid.UUID)
	ReturnAccepted(ctx context.Context, requestID uuid.UUID)
	ReturnDeclined(ctx context.Context, requestID uuid.UUID)
}
