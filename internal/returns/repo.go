package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

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

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateRequest inserts the request and its items.
func (r *repository) CreateRequest(ctx context.Context, req *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LatestForOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Resolve moves a REVIEWING request to its final status. It reports false
// when the request was already resolved.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, to enums.ReturnRequestStatus, resolvedAt time.Time, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to, "resolved_at": resolvedAt}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, enums.ReturnRequestStatusReviewing).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
