package notifications

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func TestRenderOrderStatusChanged(t *testing.T) {
	n := confirmedPayload()
	n.Status = enums.OrderStatusOutForDelivery
	email, err := Render(enums.EventOrderStatusChanged, &n, "from@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Your order is now out for delivery", email.Subject)
	assert.Contains(t, email.Body, "Hi Ada Buyer,")
	assert.Contains(t, email.Body, "- Linen shirt (Qty: 2) price: $12.50")
}

func TestRenderOrderFailedIncludesReason(t *testing.T) {
	n := confirmedPayload()
	n.Reason = "payment was not completed"
	email, err := Render(enums.EventOrderFailed, &n, "")
	require.NoError(t, err)
	assert.Contains(t, email.Body, "Reason: payment was not completed.")
}

func TestRenderStoreReturn(t *testing.T) {
	n := payloads.StoreNotification{
		OrderID:    uuid.New(),
		StoreName:  "Threads",
		Recipient:  "seller@example.com",
		OrderDate:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Items:      []payloads.LineSummary{{Name: "Hat", Quantity: 1, UnitPriceCents: 3000, LineTotalCents: 3000}},
		TotalCents: 3000,
		Reason:     "damaged",
	}
	email, err := Render(enums.EventStoreReturnAccepted, &n, "")
	require.NoError(t, err)
	assert.Equal(t, "seller@example.com", email.To)
	assert.Equal(t, "Items returned to Threads", email.Subject)
	assert.Contains(t, email.Body, "Customer reason: damaged.")
	assert.Contains(t, email.Body, "Placed: February 1, 2026")
}

func TestRenderReturnAccepted(t *testing.T) {
	n := payloads.ReturnNotification{
		OrderID:         uuid.New(),
		ReturnRequestID: uuid.New(),
		Recipient:       "buyer@example.com",
		RefundCents:     4550,
	}
	email, err := Render(enums.EventReturnAccepted, &n, "")
	require.NoError(t, err)
	assert.Contains(t, email.Body, "$45.50 has been refunded")
	assert.Contains(t, email.Body, "Hi there,")
}

func TestRenderRejectsMismatchedEvent(t *testing.T) {
	n := confirmedPayload()
	_, err := Render(enums.EventReturnAccepted, &n, "")
	require.Error(t, err)

	_, err = Render(enums.EventOrderConfirmed, "text", "")
	require.Error(t, err)
}
