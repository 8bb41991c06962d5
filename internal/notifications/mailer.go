package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Email is a rendered message ready for delivery.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// LogMailer writes emails to the structured log instead of sending them.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return fmt.Errorf("email recipient required")
	}
	if m.logg == nil {
		return nil
	}
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"mail_from":    email.From,
		"mail_to":      email.To,
		"mail_subject": email.Subject,
		"mail_bytes":   len(email.Body),
	})
	m.logg.Info(logCtx, "email sent")
	return nil
}

// Render builds the email for one decoded notification payload.
func Render(eventType enums.OutboxEventType, payload any, from string) (Email, error) {
	switch p := payload.(type) {
	case *payloads.OrderNotification:
		return renderOrder(eventType, *p, from)
	case *payloads.StoreNotification:
		return renderStore(eventType, *p, from)
	case *payloads.ReturnNotification:
		return renderReturn(eventType, *p, from)
	default:
		return Email{}, fmt.Errorf("unsupported payload %T for %s", payload, eventType)
	}
}

func renderOrder(eventType enums.OutboxEventType, n payloads.OrderNotification, from string) (Email, error) {
	var subject, intro string
	switch eventType {
	case enums.EventOrderConfirmed:
		subject = "Your order has been confirmed"
		intro = "Thank you for your order. Your payment was received."
	case enums.EventOrderCancelled:
		subject = "Your order has been cancelled"
		intro = "Your order was cancelled. Any payment taken has been refunded."
	case enums.EventOrderStatusChanged:
		subject = fmt.Sprintf("Your order is now %s", statusLabel(n.Status))
		intro = fmt.Sprintf("Your order status changed to %s.", statusLabel(n.Status))
	case enums.EventOrderFailed:
		subject = "We could not complete your order"
		intro = "Your order could not be completed."
		if n.Reason != "" {
			intro += " Reason: " + n.Reason + "."
		}
	default:
		return Email{}, fmt.Errorf("unsupported order event %s", eventType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n", greetingName(n.RecipientName), intro)
	fmt.Fprintf(&b, "Order: %s\nPlaced: %s\n", n.OrderID, n.OrderDate.Format("January 2, 2006"))
	if n.TrackingID != "" {
		fmt.Fprintf(&b, "Tracking ID: %s\n", n.TrackingID)
	}
	b.WriteString("\n")
	writeLines(&b, n.Items)
	fmt.Fprintf(&b, "\nSubtotal: %s\nFees: %s\nTotal: %s\n",
		money.FormatCents(n.SubtotalCents), money.FormatCents(n.FeesCents), money.FormatCents(n.TotalCents))

	return Email{From: from, To: n.Recipient, Subject: subject, Body: b.String()}, nil
}

func renderStore(eventType enums.OutboxEventType, n payloads.StoreNotification, from string) (Email, error) {
	var subject, intro string
	switch eventType {
	case enums.EventStoreOrderReceived:
		subject = fmt.Sprintf("New order for %s", n.StoreName)
		intro = "A customer paid for the items below. Mark each one ready once it is packed."
	case enums.EventStoreOrderCancelled:
		subject = fmt.Sprintf("Order cancelled for %s", n.StoreName)
		intro = "The customer cancelled the order below. Do not ship these items."
	case enums.EventStoreReturnAccepted:
		subject = fmt.Sprintf("Items returned to %s", n.StoreName)
		intro = "A return was accepted for the items below."
		if n.Reason != "" {
			intro += " Customer reason: " + n.Reason + "."
		}
	default:
		return Email{}, fmt.Errorf("unsupported store event %s", eventType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n", n.StoreName, intro)
	fmt.Fprintf(&b, "Order: %s\nPlaced: %s\n\n", n.OrderID, n.OrderDate.Format("January 2, 2006"))
	writeLines(&b, n.Items)
	fmt.Fprintf(&b, "\nTotal: %s\n", money.FormatCents(n.TotalCents))

	return Email{From: from, To: n.Recipient, Subject: subject, Body: b.String()}, nil
}

func renderReturn(eventType enums.OutboxEventType, n payloads.ReturnNotification, from string) (Email, error) {
	var subject, intro string
	switch eventType {
	case enums.EventReturnRequested:
		subject = "We received your return request"
		intro = "Your return request has been submitted and is being reviewed."
	case enums.EventReturnAccepted:
		subject = "Your return has been accepted"
		intro = fmt.Sprintf("Your return was accepted and %s has been refunded.", money.FormatCents(n.RefundCents))
	case enums.EventReturnDeclined:
		subject = "Your return request was declined"
		intro = "After review, your return request was declined."
	default:
		return Email{}, fmt.Errorf("unsupported return event %s", eventType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n%s\n\n", greetingName(n.RecipientName), intro)
	fmt.Fprintf(&b, "Order: %s\nReturn request: %s\n", n.OrderID, n.ReturnRequestID)
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
	}
	b.WriteString("\n")
	writeLines(&b, n.Items)

	return Email{From: from, To: n.Recipient, Subject: subject, Body: b.String()}, nil
}

func writeLines(b *strings.Builder, lines []payloads.LineSummary) {
	for _, line := range lines {
		fmt.Fprintf(b, "- %s (Qty: %d) price: %s\n", line.Name, line.Quantity, money.FormatCents(line.UnitPriceCents))
	}
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}

func statusLabel(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusReadyForShipping:
		return "ready for shipping"
	case enums.OrderStatusOutForDelivery:
		return "out for delivery"
	case enums.OrderStatusReturnRequested:
		return "awaiting return review"
	default:
		return strings.ToLower(string(status))
	}
}
