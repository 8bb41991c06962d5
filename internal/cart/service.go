// Package cart keeps each buyer's pending selections. Stock is only checked
// here, never reserved.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Service exposes cart operations for buyers.
type Service interface {
	AddItem(ctx context.Context, p auth.Principal, key LineKey) (*CartItemDTO, error)
	ChangeQuantity(ctx context.Context, p auth.Principal, cartItemID uuid.UUID, direction enums.CartDirection) (*QuantityResult, error)
	RemoveItem(ctx context.Context, p auth.Principal, cartItemID uuid.UUID) error
	GetCart(ctx context.Context, p auth.Principal) (*CartView, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// AddItem puts one unit of the listing in the caller's cart, or one more unit
// when the line already exists.
func (s *service) AddItem(ctx context.Context, p auth.Principal, key LineKey) (*CartItemDTO, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	if key.ProductID == uuid.Nil || key.ProductItemID == uuid.Nil || key.AvailableItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product, product item and available item ids are required")
	}

	listing, err := s.repo.FindListing(ctx, key.ProductID, key.ProductItemID, key.AvailableItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "available item with provided id does not exist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load available item")
	}

	var line *models.CartItem
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindOrCreateCart(ctx, p.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		existing, err := repo.FindLine(ctx, cart.ID, key)
		switch {
		case err == nil:
			line, err = s.increment(ctx, repo, existing.ID, listing.NumInStock)
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		if listing.NumInStock < 1 {
			return outOfStock(listing.NumInStock)
		}
		created := &models.CartItem{
			CartID:          cart.ID,
			ProductID:       key.ProductID,
			ProductItemID:   key.ProductItemID,
			AvailableItemID: key.AvailableItemID,
			Quantity:        1,
		}
		if err := repo.CreateLine(ctx, created); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "cart item was added concurrently, retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
		line = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	dto := newCartItemDTO(*line)
	return &dto, nil
}

// ChangeQuantity adds or removes one unit. Removing the last unit deletes the
// line.
func (s *service) ChangeQuantity(ctx context.Context, p auth.Principal, cartItemID uuid.UUID, direction enums.CartDirection) (*QuantityResult, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	if !direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "direction must be add or minus")
	}

	result := &QuantityResult{CartItemID: cartItemID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.ownedLine(ctx, repo, cartItemID, p.UserID)
		if err != nil {
			return err
		}

		if direction == enums.CartDirectionAdd {
			listing, err := repo.FindListing(ctx, item.ProductID, item.ProductItemID, item.AvailableItemID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load available item")
			}
			updated, err := s.increment(ctx, repo, item.ID, listing.NumInStock)
			if err != nil {
				return err
			}
			result.Quantity = updated.Quantity
			return nil
		}

		if item.Quantity <= 1 {
			if err := repo.DeleteLine(ctx, item.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
			}
			result.Removed = true
			return nil
		}
		if err := repo.Decrement(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement cart item")
		}
		result.Quantity = item.Quantity - 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, p auth.Principal, cartItemID uuid.UUID) error {
	if err := p.Require(enums.RoleUser); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.ownedLine(ctx, repo, cartItemID, p.UserID)
		if err != nil {
			return err
		}
		if err := repo.DeleteLine(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		return nil
	})
}

// GetCart returns the caller's lines with live prices. A user without a cart
// gets an empty one.
func (s *service) GetCart(ctx context.Context, p auth.Principal) (*CartView, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindCartByUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			view := newCartView(nil, nil)
			return &view, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	rows, err := s.repo.ListLines(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	view := newCartView(&cart.ID, rows)
	return &view, nil
}

func (s *service) increment(ctx context.Context, repo Repository, cartItemID uuid.UUID, inStock int) (*models.CartItem, error) {
	ok, err := repo.IncrementIfInStock(ctx, cartItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment cart item")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("only %d of this item is in stock", inStock)).
			WithDetails(map[string]any{"reason": "already_at_capacity", "in_stock": inStock})
	}
	item, err := repo.FindLineByID(ctx, cartItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart item")
	}
	return item, nil
}

func (s *service) ownedLine(ctx context.Context, repo Repository, cartItemID, userID uuid.UUID) (*models.CartItem, error) {
	if cartItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item id required")
	}
	item, err := repo.FindLineForUser(ctx, cartItemID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	return item, nil
}

func outOfStock(inStock int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "item is out of stock").
		WithDetails(map[string]any{"reason": "out_of_stock", "in_stock": inStock})
}
