package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error)
	FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	RecordPaymentReference(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paymentRef string) (bool, error)
	TrackingIDExists(ctx context.Context, trackingID string) (bool, error)
	MarkItemReady(ctx context.Context, itemID uuid.UUID) error
	CountItemsNotReady(ctx context.Context, orderID uuid.UUID) (int64, error)
	SellerHasItemOnOrder(ctx context.Context, orderID, sellerUserID uuid.UUID) (bool, error)
	ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	FindProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReleaser interface {
	ReleaseLines(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type refunder interface {
	Refund(ctx context.Context, req refunds.Request) (*pkgstripe.RefundResult, error)
}

// sessionCloser stops an unpaid checkout session from accepting payment.
type sessionCloser interface {
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type transitionRecorder interface {
	IncTransition(from, to string)
}

// Notifier receives post-commit order events. Implementations must not fail
// the caller.
type Notifier interface {
	OrderCancelled(ctx context.Context, orderID uuid.UUID)
	OrderStatusChanged(ctx context.Context, orderID uuid.UUID)
	OrderFailed(ctx context.Context, orderID uuid.UUID, reason string)
}
