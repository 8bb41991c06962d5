package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type countingRecorder struct {
	ops []string
}

func (c *countingRecorder) IncStockConflict(operation string) {
	c.ops = append(c.ops, operation)
}

func TestReserveDecrementsAndRecordsMovement(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn, 5, "12.50")
	ledger := NewLedger(nil)
	ref := Ref{OrderID: uuid.New(), OrderItemID: uuid.New(), Reason: enums.StockMovementOrderConfirmed}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, listing.AvailableItem.ID, 3, ref)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dbtest.StockOf(t, conn, listing.AvailableItem.ID))

	var movements []models.StockMovement
	require.NoError(t, conn.Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, -3, movements[0].Delta)
	assert.Equal(t, enums.StockMovementOrderConfirmed, movements[0].Reason)
	require.NotNil(t, movements[0].OrderItemID)
	assert.Equal(t, ref.OrderItemID, *movements[0].OrderItemID)
}

func TestReserveRejectsWhenShort(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn, 1, "10")
	recorder := &countingRecorder{}
	ledger := NewLedger(recorder)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(context.Background(), tx, listing.AvailableItem.ID, 2, Ref{Reason: enums.StockMovementOrderConfirmed})
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, 1, dbtest.StockOf(t, conn, listing.AvailableItem.ID))
	assert.Equal(t, []string{"reserve"}, recorder.ops)

	var count int64
	require.NoError(t, conn.Model(&models.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveUnknownItemIsNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	ledger := NewLedger(nil)

	err := ledger.Reserve(context.Background(), conn, uuid.New(), 1, Ref{Reason: enums.StockMovementOrderConfirmed})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestReserveValidatesQuantity(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn, 5, "10")
	ledger := NewLedger(nil)

	for _, qty := range []int{0, -2} {
		err := ledger.Reserve(context.Background(), conn, listing.AvailableItem.ID, qty, Ref{})
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, "qty %d", qty)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
	assert.Equal(t, 5, dbtest.StockOf(t, conn, listing.AvailableItem.ID))
}

func TestLastUnitGoesToExactlyOneReservation(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn, 1, "10")
	ledger := NewLedger(nil)
	ctx := context.Background()

	first := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, listing.AvailableItem.ID, 1, Ref{OrderID: uuid.New(), Reason: enums.StockMovementOrderConfirmed})
	})
	second := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.Reserve(ctx, tx, listing.AvailableItem.ID, 1, Ref{OrderID: uuid.New(), Reason: enums.StockMovementOrderConfirmed})
	})

	require.NoError(t, first)
	require.Error(t, second)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.As(second).Code())
	assert.Equal(t, 0, dbtest.StockOf(t, conn, listing.AvailableItem.ID))
}

func TestReserveLinesRollsBackOnShortLine(t *testing.T) {
	conn := dbtest.Open(t)
	plenty := dbtest.SeedListing(t, conn, 10, "5")
	scarce := dbtest.SeedListing(t, conn, 1, "7")
	ledger := NewLedger(nil)

	lines := []Line{
		{AvailableItemID: plenty.AvailableItem.ID, Quantity: 4, Ref: Ref{Reason: enums.StockMovementOrderConfirmed}},
		{AvailableItemID: scarce.AvailableItem.ID, Quantity: 2, Ref: Ref{Reason: enums.StockMovementOrderConfirmed}},
	}
	err := conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReserveLines(context.Background(), tx, lines)
	})
	require.Error(t, err)

	assert.Equal(t, 10, dbtest.StockOf(t, conn, plenty.AvailableItem.ID))
	assert.Equal(t, 1, dbtest.StockOf(t, conn, scarce.AvailableItem.ID))
}

func TestReleaseRestoresAndBalancesMovements(t *testing.T) {
	conn := dbtest.Open(t)
	listing := dbtest.SeedListing(t, conn, 5, "10")
	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	order := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusConfirmed, map[*dbtest.Listing]int{&listing: 3})
	ledger := NewLedger(nil)
	ctx := context.Background()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReserveLines(ctx, tx, LinesForOrderItems(order.Items, enums.StockMovementOrderConfirmed))
	}))
	assert.Equal(t, 2, dbtest.StockOf(t, conn, listing.AvailableItem.ID))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return ledger.ReleaseLines(ctx, tx, LinesForOrderItems(order.Items, enums.StockMovementOrderCancelled))
	}))
	assert.Equal(t, 5, dbtest.StockOf(t, conn, listing.AvailableItem.ID))

	var sum int64
	require.NoError(t, conn.Model(&models.StockMovement{}).
		Where("order_id = ?", order.ID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error)
	assert.Zero(t, sum)
}

func TestReleaseUnknownItem(t *testing.T) {
	conn := dbtest.Open(t)
	ledger := NewLedger(&countingRecorder{})

	err := ledger.Release(context.Background(), conn, uuid.New(), 1, Ref{Reason: enums.StockMovementOrderCancelled})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
