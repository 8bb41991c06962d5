package notifications

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Flat fees added to buyer-facing order totals.
const (
	TransactionFeeCents int64 = 100
	ShippingFeeCents    int64 = 0
)

func lineSummary(item models.OrderItem, qty int) payloads.LineSummary {
	return payloads.LineSummary{
		OrderItemID:    item.ID,
		Name:           item.ProductName,
		Quantity:       qty,
		UnitPriceCents: money.ToCents(item.UnitPrice),
		LineTotalCents: money.LineTotalCents(item.UnitPrice, qty),
	}
}

func buyerName(user models.User) string {
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func orderNotification(order models.Order, buyer models.User, reason string) payloads.OrderNotification {
	n := payloads.OrderNotification{
		OrderID:       order.ID,
		Recipient:     buyer.Email,
		RecipientName: buyerName(buyer),
		Status:        order.Status,
		OrderDate:     order.CreatedAt,
		Items:         make([]payloads.LineSummary, 0, len(order.Items)),
		FeesCents:     TransactionFeeCents + ShippingFeeCents,
		Reason:        reason,
	}
	if order.TrackingID != nil {
		n.TrackingID = *order.TrackingID
	}
	for _, item := range order.Items {
		line := lineSummary(item, item.Quantity)
		n.Items = append(n.Items, line)
		n.SubtotalCents += line.LineTotalCents
	}
	n.TotalCents = n.SubtotalCents + n.FeesCents
	return n
}

// storeNotifications splits the order into one notification per store, in
// the order stores are given. qty overrides item quantities when non-nil.
func storeNotifications(order models.Order, stores []models.Store, qty map[uuid.UUID]int, reason string) []payloads.StoreNotification {
	out := make([]payloads.StoreNotification, 0, len(stores))
	for _, store := range stores {
		n := payloads.StoreNotification{
			OrderID:   order.ID,
			StoreID:   store.ID,
			StoreName: store.Name,
			Recipient: store.Email,
			OrderDate: order.CreatedAt,
			Reason:    reason,
		}
		for _, item := range order.Items {
			if item.StoreID != store.ID {
				continue
			}
			quantity := item.Quantity
			if qty != nil {
				q, ok := qty[item.ID]
				if !ok {
					continue
				}
				quantity = q
			}
			line := lineSummary(item, quantity)
			n.Items = append(n.Items, line)
			n.TotalCents += line.LineTotalCents
		}
		if len(n.Items) > 0 {
			out = append(out, n)
		}
	}
	return out
}

func returnNotification(order models.Order, req models.ReturnRequest, buyer models.User) payloads.ReturnNotification {
	byID := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}
	n := payloads.ReturnNotification{
		OrderID:         order.ID,
		ReturnRequestID: req.ID,
		Recipient:       buyer.Email,
		RecipientName:   buyerName(buyer),
		Status:          req.Status,
		Reason:          req.Reason,
		Items:           make([]payloads.LineSummary, 0, len(req.Items)),
	}
	for _, ri := range req.Items {
		item, ok := byID[ri.OrderItemID]
		if !ok {
			continue
		}
		line := lineSummary(item, ri.Quantity)
		n.Items = append(n.Items, line)
		n.RefundCents += line.LineTotalCents
	}
	if req.RefundAmountCents != nil {
		n.RefundCents = *req.RefundAmountCents
	}
	return n
}

func storeIDs(items []models.OrderItem, keep func(models.OrderItem) bool) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)
	for _, item := range items {
		if keep != nil && !keep(item) {
			continue
		}
		if _, ok := seen[item.StoreID]; ok {
			continue
		}
		seen[item.StoreID] = struct{}{}
		ids = append(ids, item.StoreID)
	}
	return ids
}
