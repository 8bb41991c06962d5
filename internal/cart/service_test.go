package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, Repository, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, client)
	require.NoError(t, err)
	return svc, repo, conn
}

func keyFor(l dbtest.Listing) LineKey {
	return LineKey{ProductID: l.Product.ID, ProductItemID: l.ProductItem.ID, AvailableItemID: l.AvailableItem.ID}
}

func buyerPrincipal(u models.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Role: u.Role}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestAddItemCreatesThenIncrementsUpToStock(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 2, "12.50")

	item, err := svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(listing))
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)

	again, err := svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(listing))
	require.NoError(t, err)
	assert.Equal(t, item.ID, again.ID)
	assert.Equal(t, 2, again.Quantity)

	_, err = svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(listing))
	assertCode(t, err, pkgerrors.CodeConflict)

	assert.Equal(t, 2, dbtest.StockOf(t, conn, listing.AvailableItem.ID))
}

func TestAddItemOutOfStock(t *testing.T) {
	svc, _, conn := newTestService(t)
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 0, "5.00")

	_, err := svc.AddItem(context.Background(), buyerPrincipal(buyer), keyFor(listing))
	assertCode(t, err, pkgerrors.CodeInsufficientStock)
}

func TestAddItemRejectsMismatchedListing(t *testing.T) {
	svc, _, conn := newTestService(t)
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	first := dbtest.SeedListing(t, conn, 3, "5.00")
	second := dbtest.SeedListing(t, conn, 3, "5.00")

	key := keyFor(first)
	key.AvailableItemID = second.AvailableItem.ID
	_, err := svc.AddItem(context.Background(), buyerPrincipal(buyer), key)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestAddItemRequiresBuyerRole(t *testing.T) {
	svc, _, conn := newTestService(t)
	listing := dbtest.SeedListing(t, conn, 3, "5.00")

	_, err := svc.AddItem(context.Background(), buyerPrincipal(listing.Seller), keyFor(listing))
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = svc.AddItem(context.Background(), auth.System, keyFor(listing))
	assertCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestChangeQuantity(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 2, "3.00")

	item, err := svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(listing))
	require.NoError(t, err)

	res, err := svc.ChangeQuantity(ctx, buyerPrincipal(buyer), item.ID, enums.CartDirectionAdd)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Quantity)

	_, err = svc.ChangeQuantity(ctx, buyerPrincipal(buyer), item.ID, enums.CartDirectionAdd)
	assertCode(t, err, pkgerrors.CodeConflict)

	res, err = svc.ChangeQuantity(ctx, buyerPrincipal(buyer), item.ID, enums.CartDirectionMinus)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quantity)
	assert.False(t, res.Removed)

	res, err = svc.ChangeQuantity(ctx, buyerPrincipal(buyer), item.ID, enums.CartDirectionMinus)
	require.NoError(t, err)
	assert.True(t, res.Removed)

	var count int64
	require.NoError(t, conn.Model(&models.CartItem{}).Where("id = ?", item.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestChangeQuantityValidation(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	stranger := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 2, "3.00")

	item, err := svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(listing))
	require.NoError(t, err)

	_, err = svc.ChangeQuantity(ctx, buyerPrincipal(buyer), item.ID, enums.CartDirection("double"))
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.ChangeQuantity(ctx, buyerPrincipal(stranger), item.ID, enums.CartDirectionMinus)
	assertCode(t, err, pkgerrors.CodeNotFound)

	err = svc.RemoveItem(ctx, buyerPrincipal(stranger), item.ID)
	assertCode(t, err, pkgerrors.CodeNotFound)

	require.NoError(t, svc.RemoveItem(ctx, buyerPrincipal(buyer), item.ID))
	err = svc.RemoveItem(ctx, buyerPrincipal(buyer), item.ID)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetCartTotals(t *testing.T) {
	svc, _, conn := newTestService(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	shirt := dbtest.SeedListing(t, conn, 5, "12.50")
	hat := dbtest.SeedListing(t, conn, 5, "0.99")

	empty, err := svc.GetCart(ctx, buyerPrincipal(buyer))
	require.NoError(t, err)
	assert.Nil(t, empty.ID)
	assert.Empty(t, empty.Items)

	_, err = svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(shirt))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(shirt))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, buyerPrincipal(buyer), keyFor(hat))
	require.NoError(t, err)

	view, err := svc.GetCart(ctx, buyerPrincipal(buyer))
	require.NoError(t, err)
	require.NotNil(t, view.ID)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 3, view.TotalItems)
	assert.Equal(t, int64(2599), view.SubtotalCents)

	byStore := map[uuid.UUID]CartLineView{}
	for _, line := range view.Items {
		byStore[line.StoreID] = line
	}
	assert.Equal(t, int64(1250), byStore[shirt.Store.ID].UnitPriceCents)
	assert.Equal(t, 2, byStore[shirt.Store.ID].Quantity)
	assert.Equal(t, "Blue", byStore[shirt.Store.ID].Variant)
	assert.Equal(t, "M", byStore[hat.Store.ID].Size)
}

func TestClearForUserOnlyTouchesOwnCart(t *testing.T) {
	svc, repo, conn := newTestService(t)
	ctx := context.Background()
	alice := dbtest.SeedUser(t, conn, enums.RoleUser)
	bob := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 5, "1.00")

	_, err := svc.AddItem(ctx, buyerPrincipal(alice), keyFor(listing))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, buyerPrincipal(bob), keyFor(listing))
	require.NoError(t, err)

	cleared, err := repo.ClearForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	view, err := svc.GetCart(ctx, buyerPrincipal(bob))
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	view, err = svc.GetCart(ctx, buyerPrincipal(alice))
	require.NoError(t, err)
	require.NotNil(t, view.ID)
	assert.Empty(t, view.Items)
}
