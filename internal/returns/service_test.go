package returns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type fakeRefunder struct {
	err      error
	requests []refunds.Request
}

func (f *fakeRefunder) Refund(_ context.Context, req refunds.Request) (*pkgstripe.RefundResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &pkgstripe.RefundResult{ID: "re_return", Status: "succeeded"}, nil
}

type fakeNotifier struct {
	requested []uuid.UUID
	accepted  []uuid.UUID
	declined  []uuid.UUID
}

func (f *fakeNotifier) ReturnRequested(_ context.Context, id uuid.UUID) {
	f.requested = append(f.requested, id)
}

func (f *fakeNotifier) ReturnAccepted(_ context.Context, id uuid.UUID) {
	f.accepted = append(f.accepted, id)
}

func (f *fakeNotifier) ReturnDeclined(_ context.Context, id uuid.UUID) {
	f.declined = append(f.declined, id)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	refunder *fakeRefunder
	notifier *fakeNotifier
	buyer    models.User
	admin    models.User
	shirt    dbtest.Listing
	hat      dbtest.Listing
	order    models.Order
}

// newFixture seeds a delivered order with 3 shirts at 10.00 and 1 hat at 25.50.
func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	orderRepo := orders.NewRepository(conn)
	f := fixture{conn: conn, refunder: &fakeRefunder{}, notifier: &fakeNotifier{}}

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       client,
		Machine:  orders.NewStateMachine(orderRepo, nil),
		Ledger:   inventory.NewLedger(nil),
		Refunds:  f.refunder,
		Notifier: f.notifier,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.svc = svc

	f.buyer = dbtest.SeedUser(t, conn, enums.RoleUser)
	f.admin = dbtest.SeedUser(t, conn, enums.RoleAdmin)
	f.shirt = dbtest.SeedListing(t, conn, 4, "10.00")
	f.hat = dbtest.SeedListing(t, conn, 2, "25.50")
	f.order = dbtest.SeedOrder(t, conn, f.buyer.ID, enums.OrderStatusDelivered, map[*dbtest.Listing]int{&f.shirt: 3, &f.hat: 1})
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("payment_reference", "pi_delivered").Error)
	return f
}

func (f fixture) itemFor(listing dbtest.Listing) models.OrderItem {
	for _, item := range f.order.Items {
		if item.AvailableItemID == listing.AvailableItem.ID {
			return item
		}
	}
	panic("listing not on order")
}

func principal(user models.User) auth.Principal {
	return auth.Principal{UserID: user.ID, Role: user.Role}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func intPtr(v int) *int { return &v }

func (f fixture) request(t *testing.T, items ...ItemInput) *ReturnRequestView {
	t.Helper()
	view, err := f.svc.RequestReturn(context.Background(), principal(f.buyer), f.order.ID, RequestInput{
		Items:  items,
		Reason: "wrong size",
	})
	require.NoError(t, err)
	return view
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestRequestReturnCreatesRequest(t *testing.T) {
	f := newFixture(t)
	shirt := f.itemFor(f.shirt)

	view := f.request(t, ItemInput{OrderItemID: shirt.ID, Quantity: intPtr(2)})

	assert.Equal(t, enums.ReturnRequestStatusReviewing, view.Status)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, int64(2000), view.TotalCents)
	assert.Equal(t, enums.OrderStatusReturnRequested, dbtest.StatusOf(t, f.conn, f.order.ID))
	assert.Equal(t, []uuid.UUID{view.ID}, f.notifier.requested)

	var stored models.ReturnRequest
	require.NoError(t, f.conn.Preload("Items").First(&stored, "id = ?", view.ID).Error)
	assert.Equal(t, "wrong size", stored.Reason)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 2, stored.Items[0].Quantity)
}

func TestRequestReturnDefaultsToOrderedQuantity(t *testing.T) {
	f := newFixture(t)
	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.shirt).ID}, ItemInput{OrderItemID: f.itemFor(f.hat).ID})

	require.Len(t, view.Items, 2)
	assert.Equal(t, int64(3*1000+2550), view.TotalCents)
}

func TestRequestReturnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shirt := f.itemFor(f.shirt)

	cases := map[string]RequestInput{
		"no items":     {Reason: "broken"},
		"no reason":    {Items: []ItemInput{{OrderItemID: shirt.ID}}},
		"duplicate":    {Items: []ItemInput{{OrderItemID: shirt.ID}, {OrderItemID: shirt.ID}}, Reason: "broken"},
		"foreign item": {Items: []ItemInput{{OrderItemID: uuid.New()}}, Reason: "broken"},
		"too many":     {Items: []ItemInput{{OrderItemID: shirt.ID, Quantity: intPtr(4)}}, Reason: "broken"},
		"zero":         {Items: []ItemInput{{OrderItemID: shirt.ID, Quantity: intPtr(0)}}, Reason: "broken"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RequestReturn(ctx, principal(f.buyer), f.order.ID, input)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}
	assert.Equal(t, enums.OrderStatusDelivered, dbtest.StatusOf(t, f.conn, f.order.ID))
}

func TestRequestReturnOwnershipAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := RequestInput{Items: []ItemInput{{OrderItemID: f.itemFor(f.shirt).ID}}, Reason: "broken"}

	stranger := dbtest.SeedUser(t, f.conn, enums.RoleUser)
	_, err := f.svc.RequestReturn(ctx, principal(stranger), f.order.ID, input)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.RequestReturn(ctx, principal(f.admin), f.order.ID, input)
	requireCode(t, err, pkgerrors.CodeForbidden)

	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusShipped).Error)
	_, err = f.svc.RequestReturn(ctx, principal(f.buyer), f.order.ID, input)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAcceptReturnRefundsAndRestocks(t *testing.T) {
	f := newFixture(t)
	view := f.request(t,
		ItemInput{OrderItemID: f.itemFor(f.shirt).ID, Quantity: intPtr(2)},
		ItemInput{OrderItemID: f.itemFor(f.hat).ID},
	)

	accepted, err := f.svc.AcceptReturn(context.Background(), principal(f.admin), f.order.ID, view.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.ReturnRequestStatusApproved, accepted.Status)
	require.NotNil(t, accepted.RefundAmountCents)
	assert.Equal(t, int64(4550), *accepted.RefundAmountCents)

	require.Len(t, f.refunder.requests, 1)
	req := f.refunder.requests[0]
	assert.Equal(t, refunds.PurposeReturn, req.Purpose)
	assert.Equal(t, "pi_delivered", req.PaymentReference)
	require.NotNil(t, req.AmountCents)
	assert.Equal(t, int64(4550), *req.AmountCents)
	assert.Equal(t, "return-"+view.ID.String(), req.IdempotencyKey())

	assert.Equal(t, enums.OrderStatusRefunded, dbtest.StatusOf(t, f.conn, f.order.ID))
	assert.Equal(t, 6, dbtest.StockOf(t, f.conn, f.shirt.AvailableItem.ID))
	assert.Equal(t, 3, dbtest.StockOf(t, f.conn, f.hat.AvailableItem.ID))

	var stored models.ReturnRequest
	require.NoError(t, f.conn.First(&stored, "id = ?", view.ID).Error)
	assert.Equal(t, enums.ReturnRequestStatusApproved, stored.Status)
	require.NotNil(t, stored.RefundID)
	assert.Equal(t, "re_return", *stored.RefundID)
	require.NotNil(t, stored.ResolvedAt)

	var movements []models.StockMovement
	require.NoError(t, f.conn.Where("reason = ?", enums.StockMovementReturnAccepted).Find(&movements).Error)
	assert.Len(t, movements, 2)
	assert.Equal(t, []uuid.UUID{view.ID}, f.notifier.accepted)
}

func TestAcceptReturnGatewayFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.shirt).ID})
	f.refunder.err = pkgerrors.New(pkgerrors.CodeGateway, refunds.MessageFor(refunds.ReasonInsufficient))

	_, err := f.svc.AcceptReturn(context.Background(), principal(f.admin), f.order.ID, view.ID)
	requireCode(t, err, pkgerrors.CodeGateway)

	assert.Equal(t, enums.OrderStatusReturnRequested, dbtest.StatusOf(t, f.conn, f.order.ID))
	assert.Equal(t, 4, dbtest.StockOf(t, f.conn, f.shirt.AvailableItem.ID))

	var stored models.ReturnRequest
	require.NoError(t, f.conn.First(&stored, "id = ?", view.ID).Error)
	assert.Equal(t, enums.ReturnRequestStatusReviewing, stored.Status)
	assert.Empty(t, f.notifier.accepted)
}

func TestAcceptReturnTwiceIsStateConflict(t *testing.T) {
	f := newFixture(t)
	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.hat).ID})

	_, err := f.svc.AcceptReturn(context.Background(), principal(f.admin), f.order.ID, view.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptReturn(context.Background(), principal(f.admin), f.order.ID, view.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Len(t, f.refunder.requests, 1)
	assert.Equal(t, 3, dbtest.StockOf(t, f.conn, f.hat.AvailableItem.ID))
}

func TestAcceptReturnRequiresAdminAndMatchingOrder(t *testing.T) {
	f := newFixture(t)
	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.hat).ID})

	_, err := f.svc.AcceptReturn(context.Background(), principal(f.buyer), f.order.ID, view.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.AcceptReturn(context.Background(), principal(f.admin), uuid.New(), view.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.AcceptReturn(context.Background(), principal(f.admin), f.order.ID, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeclineReturnRestoresDelivered(t *testing.T) {
	f := newFixture(t)
	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.shirt).ID})

	declined, err := f.svc.DeclineReturn(context.Background(), principal(f.admin), f.order.ID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnRequestStatusDeclined, declined.Status)
	require.NotNil(t, declined.ResolvedAt)
	assert.True(t, fixedNow.Equal(*declined.ResolvedAt))

	assert.Equal(t, enums.OrderStatusDelivered, dbtest.StatusOf(t, f.conn, f.order.ID))
	assert.Empty(t, f.refunder.requests)
	assert.Equal(t, 4, dbtest.StockOf(t, f.conn, f.shirt.AvailableItem.ID))
	assert.Equal(t, []uuid.UUID{view.ID}, f.notifier.declined)

	// the buyer may ask again
	again := f.request(t, ItemInput{OrderItemID: f.itemFor(f.hat).ID})
	assert.NotEqual(t, view.ID, again.ID)
}

func TestGetReturnRequestReturnsLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetReturnRequest(ctx, principal(f.admin), f.order.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	view := f.request(t, ItemInput{OrderItemID: f.itemFor(f.shirt).ID, Quantity: intPtr(1)})

	got, err := f.svc.GetReturnRequest(ctx, principal(f.admin), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Linen shirt", got.Items[0].ProductName)
	assert.Equal(t, int64(1000), got.TotalCents)

	_, err = f.svc.GetReturnRequest(ctx, principal(f.buyer), f.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestRefundCents(t *testing.T) {
	f := newFixture(t)
	shirt := f.itemFor(f.shirt)
	req := models.ReturnRequest{Items: []models.ReturnItem{
		{OrderItemID: shirt.ID, Quantity: 3},
		{OrderItemID: uuid.New(), Quantity: 5},
	}}
	assert.Equal(t, int64(3000), RefundCents(f.order.Items, req))
}
