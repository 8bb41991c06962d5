package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
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
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder loads the order row FOR UPDATE so concurrent readiness updates on
// the same order serialize.
func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItem(ctx context.Context, id uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CompareAndSetStatus moves the order to `to` only while it is still in
// `from`, writing any extra columns in the same statement. It reports false
// when another writer got there first.
func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordPaymentReference stores a payment that arrived after the order left
// PROCESSING. It only writes while the order is still in status and has no
// payment recorded.
func (r *repository) RecordPaymentReference(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paymentRef string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_reference IS NULL", id, status).
		Update("payment_reference", paymentRef)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) TrackingIDExists(ctx context.Context, trackingID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tracking_id = ?", trackingID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) MarkItemReady(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Update("ready_to_be_shipped", true).Error
}

func (r *repository) CountItemsNotReady(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND ready_to_be_shipped = ?", orderID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) SellerHasItemOnOrder(ctx context.Context, orderID, sellerUserID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN stores ON stores.id = order_items.store_id").
		Where("order_items.order_id = ? AND stores.user_id = ?", orderID, sellerUserID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	cursor, err := params.Keyset()
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != nil {
		query = query.Where("orders.user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("orders.status = ?", *filter.Status)
	}
	if filter.StoreID != nil {
		storeID := *filter.StoreID
		query = query.
			Where("orders.id IN (?)", r.db.Model(&models.OrderItem{}).Select("order_id").Where("store_id = ?", storeID)).
			Preload("Items", "store_id = ?", storeID)
	} else {
		query = query.Preload("Items")
	}
	if cursor != nil {
		query = query.Where("(orders.created_at < ?) OR (orders.created_at = ? AND orders.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	size := params.PageSize()
	var rows []models.Order
	err = query.
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		Limit(size + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	rows, next := pagination.Split(rows, size, func(o models.Order) pagination.Keyset {
		return pagination.Keyset{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, newOrderSummary(row))
	}
	return list, nil
}

func (r *repository) FindProcessingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusProcessing, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
