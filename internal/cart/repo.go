package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrCreateCart returns the user's cart, creating it on first use.
func (r *repository) FindOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindCartByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.createCart(ctx, userID)
}

// createCart inserts with ON CONFLICT DO NOTHING so losing the race on
// carts.user_id leaves the surrounding transaction usable, then reads the
// winner's row.
func (r *repository) createCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	created := &models.Cart{UserID: userID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(created)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return created, nil
	}
	return r.FindCartByUser(ctx, userID)
}

func (r *repository) FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindListing loads the available item only when the three ids describe the
// same product hierarchy.
func (r *repository) FindListing(ctx context.Context, productID, productItemID, availableItemID uuid.UUID) (*models.AvailableItem, error) {
	var item models.AvailableItem
	err := r.db.WithContext(ctx).
		Model(&models.AvailableItem{}).
		Joins("JOIN product_items ON product_items.id = available_items.product_item_id").
		Where("available_items.id = ? AND available_items.product_item_id = ? AND product_items.product_id = ?",
			availableItemID, productItemID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindLine(ctx context.Context, cartID uuid.UUID, key LineKey) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND product_item_id = ? AND available_item_id = ?",
			cartID, key.ProductID, key.ProductItemID, key.AvailableItemID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindLineByID(ctx context.Context, cartItemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).Where("id = ?", cartItemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindLineForUser loads a cart line only if it sits in the user's cart.
func (r *repository) FindLineForUser(ctx context.Context, cartItemID, userID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.user_id = ?", cartItemID, userID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateLine(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// IncrementIfInStock adds one unit only while the new quantity still fits the
// available stock. It reports false when the line is already at capacity.
func (r *repository) IncrementIfInStock(ctx context.Context, cartItemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE cart_items SET quantity = quantity + 1, updated_at = ?
		 WHERE id = ? AND quantity + 1 <= (
			SELECT num_in_stock FROM available_items WHERE available_items.id = cart_items.available_item_id
		 )`,
		time.Now().UTC(), cartItemID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Decrement(ctx context.Context, cartItemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ? AND quantity > 1", cartItemID).
		Update("quantity", gorm.Expr("quantity - 1")).Error
}

func (r *repository) DeleteLine(ctx context.Context, cartItemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", cartItemID).Delete(&models.CartItem{}).Error
}

func (r *repository) ListLines(ctx context.Context, cartID uuid.UUID) ([]LineRow, error) {
	var rows []LineRow
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select(`cart_items.id, cart_items.cart_id, products.store_id, cart_items.product_id, cart_items.product_item_id,
			cart_items.available_item_id, products.name AS product_name, product_items.name AS product_item_name,
			available_items.size, product_items.image_url, cart_items.quantity, available_items.num_in_stock,
			available_items.current_price`).
		Joins("JOIN available_items ON available_items.id = cart_items.available_item_id").
		Joins("JOIN product_items ON product_items.id = cart_items.product_item_id").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.cart_id = ?", cartID).
		Order("cart_items.created_at ASC").
		Order("cart_items.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ClearForUser deletes every line of the user's cart and keeps the cart row.
func (r *repository) ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id IN (?)", r.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
