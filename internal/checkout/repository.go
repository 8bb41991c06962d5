package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const orderItemBatch = 100

// ErrOrderNotProcessing is returned when a session id arrives for an order
// that already left PROCESSING, e.g. a webhook expired it first.
var ErrOrderNotProcessing = errors.New("order is no longer processing")

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateOrder writes the header first and then the item snapshot in batches,
// stamping each item with the new order id.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	db := r.db.WithContext(ctx)
	items := order.Items
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := db.CreateInBatches(&items, orderItemBatch).Error; err != nil {
		return fmt.Errorf("insert %d order items: %w", len(items), err)
	}
	order.Items = items
	return nil
}

func (r *repository) SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusProcessing).
		Update("checkout_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotProcessing
	}
	return nil
}
