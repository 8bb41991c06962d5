package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func TestCompareAndSetStatus(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 5, "10.00")
	order := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusProcessing, map[*dbtest.Listing]int{&listing: 1})

	ok, err := repo.CompareAndSetStatus(ctx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusConfirmed, map[string]any{"tracking_id": "AbCdE12345"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSetStatus(ctx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, loaded.Status)
	require.NotNil(t, loaded.TrackingID)
	assert.Equal(t, "AbCdE12345", *loaded.TrackingID)
	assert.Len(t, loaded.Items, 1)

	exists, err := repo.TrackingIDExists(ctx, "AbCdE12345")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordPaymentReferenceWritesOnce(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 5, "10.00")
	order := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusCancelled, map[*dbtest.Listing]int{&listing: 1})

	ok, err := repo.RecordPaymentReference(ctx, order.ID, enums.OrderStatusFailed, "pi_late")
	require.NoError(t, err)
	assert.False(t, ok, "status guard")

	ok, err = repo.RecordPaymentReference(ctx, order.ID, enums.OrderStatusCancelled, "pi_late")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RecordPaymentReference(ctx, order.ID, enums.OrderStatusCancelled, "pi_other")
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.PaymentReference)
	assert.Equal(t, "pi_late", *loaded.PaymentReference)
	assert.Equal(t, enums.OrderStatusCancelled, loaded.Status)
}

func TestReadinessQueries(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	first := dbtest.SeedListing(t, conn, 5, "10.00")
	second := dbtest.SeedListing(t, conn, 5, "4.50")
	order := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusConfirmed, map[*dbtest.Listing]int{&first: 1, &second: 2})

	pending, err := repo.CountItemsNotReady(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	require.NoError(t, repo.MarkItemReady(ctx, order.Items[0].ID))
	pending, err = repo.CountItemsNotReady(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	has, err := repo.SellerHasItemOnOrder(ctx, order.ID, first.Seller.ID)
	require.NoError(t, err)
	assert.True(t, has)

	outsider := dbtest.SeedUser(t, conn, enums.RoleSeller)
	has, err = repo.SellerHasItemOnOrder(ctx, order.ID, outsider.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestListOrdersFilters(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	alice := dbtest.SeedUser(t, conn, enums.RoleUser)
	bob := dbtest.SeedUser(t, conn, enums.RoleUser)
	shirts := dbtest.SeedListing(t, conn, 10, "10.00")
	hats := dbtest.SeedListing(t, conn, 10, "5.00")

	dbtest.SeedOrder(t, conn, alice.ID, enums.OrderStatusConfirmed, map[*dbtest.Listing]int{&shirts: 2, &hats: 1})
	dbtest.SeedOrder(t, conn, alice.ID, enums.OrderStatusProcessing, map[*dbtest.Listing]int{&hats: 3})
	dbtest.SeedOrder(t, conn, bob.ID, enums.OrderStatusConfirmed, map[*dbtest.Listing]int{&shirts: 1})

	aliceID := alice.ID
	list, err := repo.ListOrders(ctx, ListFilter{UserID: &aliceID}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 2)
	assert.Empty(t, list.NextCursor)

	storeID := shirts.Store.ID
	list, err = repo.ListOrders(ctx, ListFilter{StoreID: &storeID}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)
	for _, summary := range list.Orders {
		assert.Equal(t, summary.TotalItems*1000, int(summary.TotalCents))
	}

	confirmed := enums.OrderStatusConfirmed
	list, err = repo.ListOrders(ctx, ListFilter{Status: &confirmed}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 2)
}

func TestListOrdersPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 10, "1.00")
	for i := 0; i < 3; i++ {
		dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusProcessing, map[*dbtest.Listing]int{&listing: 1})
	}

	seen := map[string]bool{}
	page, err := repo.ListOrders(ctx, ListFilter{}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	for _, o := range page.Orders {
		seen[o.ID.String()] = true
	}

	page, err = repo.ListOrders(ctx, ListFilter{}, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Empty(t, page.NextCursor)
	assert.False(t, seen[page.Orders[0].ID.String()])
}

func TestFindProcessingBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	buyer := dbtest.SeedUser(t, conn, enums.RoleUser)
	listing := dbtest.SeedListing(t, conn, 10, "1.00")
	stale := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusProcessing, map[*dbtest.Listing]int{&listing: 1})
	fresh := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusProcessing, map[*dbtest.Listing]int{&listing: 1})
	confirmed := dbtest.SeedOrder(t, conn, buyer.ID, enums.OrderStatusConfirmed, map[*dbtest.Listing]int{&listing: 1})

	old := stale.CreatedAt.Add(-48 * time.Hour)
	require.NoError(t, conn.Model(&models.Order{}).Where("id IN ?", []any{stale.ID, confirmed.ID}).Update("created_at", old).Error)

	rows, err := repo.FindProcessingBefore(ctx, fresh.CreatedAt.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
