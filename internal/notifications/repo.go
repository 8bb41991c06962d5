package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository loads what a notification needs to describe an order.
type Repository interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindStores(ctx context.Context, ids []uuid.UUID) ([]models.Store, error)
	FindReturnRequest(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repositoryImpl) FindStores(ctx context.Context, ids []uuid.UUID) ([]models.Store, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var stores []models.Store
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&stores).Error
	return stores, err
}

func (r *repositoryImpl) FindReturnRequest(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	if err := r.db.WithContext(ctx).Preload("Items").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}
