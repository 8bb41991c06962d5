// Package stripewebhook reconciles hosted checkout outcomes with orders,
// stock and carts.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Webhook outcomes, as counted per event type.
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeOversubscribed   = "oversubscribed"
	OutcomeLatePayment      = "late_payment_refunded"
	OutcomeFailed           = "failed"
	OutcomeIgnored          = "ignored"
	OutcomeError            = "error"
)

const (
	// OversubscribedReason is sent to the buyer when paid items sold out.
	OversubscribedReason = "some items sold out before your payment was confirmed; you have been refunded"
	// PaymentFailedReason is sent when the session expired or the payment failed.
	PaymentFailedReason = "payment was not completed"
	// LatePaymentReason is sent when a payment lands on a closed order.
	LatePaymentReason = "your payment arrived after the order was closed; you have been refunded"

	trackingCollisionRetries = 3
)

type ServiceParams struct {
	Tx       txRunner
	Orders   orders.Repository
	Machine  statusTransitioner
	Ledger   stockReserver
	Carts    cart.Repository
	Tracking trackingGenerator
	Refunds  refunder
	Notifier Notifier
	Metrics  eventRecorder
	Logger   *logger.Logger
}

// Service applies checkout session events to orders.
type Service struct {
	tx       txRunner
	orders   orders.Repository
	machine  statusTransitioner
	ledger   stockReserver
	carts    cart.Repository
	tracking trackingGenerator
	refunds  refunder
	notifier Notifier
	metrics  eventRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Machine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order state machine required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory ledger required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	}
	if params.Tracking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tracking generator required")
	}
	if params.Refunds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "refund service required")
	}
	return &Service{
		tx:       params.Tx,
		orders:   params.Orders,
		machine:  params.Machine,
		ledger:   params.Ledger,
		carts:    params.Carts,
		tracking: params.Tracking,
		refunds:  params.Refunds,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent applies one verified event. A nil error means the event is
// resolved and must be acknowledged; any error lets the gateway redeliver.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, event.ID)
	}

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		outcome = OutcomeError
	}
	if s.metrics != nil {
		s.metrics.IncWebhookEvent(string(event.Type), outcome)
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (string, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, err := decodeSession(event)
		if err != nil {
			return "", err
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return OutcomeIgnored, nil
		}
		return s.confirm(ctx, sess)
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		sess, err := decodeSession(event)
		if err != nil {
			return "", err
		}
		return s.fail(ctx, sess)
	default:
		return OutcomeIgnored, nil
	}
}

// confirm moves a paid order to CONFIRMED, reserving its stock and clearing
// the buyer's cart in the same transaction.
func (s *Service) confirm(ctx context.Context, sess *stripe.CheckoutSession) (string, error) {
	order, err := s.loadOrder(ctx, sess)
	if err != nil {
		return "", err
	}
	paymentRef := paymentIntentID(sess)
	if paymentRef == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	if closedBeforeShipping(order) {
		return s.refundClosed(ctx, order, paymentRef)
	}
	if order.Status != enums.OrderStatusProcessing {
		return OutcomeAlreadyProcessed, nil
	}

	address := formatAddress(sess)
	for attempt := 0; attempt < trackingCollisionRetries; attempt++ {
		trackingID, err := s.tracking.Generate(ctx, s.orders)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate tracking id")
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			updates := map[string]any{
				"tracking_id":       trackingID,
				"payment_reference": paymentRef,
				"address":           address,
			}
			if err := s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusConfirmed, orders.ActorSystem, updates); err != nil {
				return err
			}
			if err := s.ledger.ReserveLines(ctx, tx, inventory.LinesForOrderItems(order.Items, enums.StockMovementOrderConfirmed)); err != nil {
				return err
			}
			if _, err := s.carts.WithTx(tx).ClearForUser(ctx, order.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
			}
			return nil
		})
		if err == nil {
			if s.notifier != nil {
				s.notifier.OrderConfirmed(ctx, order.ID)
			}
			return OutcomeConfirmed, nil
		}
		if db.IsUniqueViolation(err, "tracking") {
			continue
		}

		switch codeOf(err) {
		case pkgerrors.CodeInsufficientStock:
			return s.failOversubscribed(ctx, order.ID, paymentRef, address, err)
		case pkgerrors.CodeStateConflict:
			return OutcomeAlreadyProcessed, nil
		}
		return "", err
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not assign a unique tracking id")
}

// failOversubscribed records the failure and returns the buyer's money. The
// refund runs after the FAILED commit so a redelivery can retry it.
func (s *Service) failOversubscribed(ctx context.Context, orderID uuid.UUID, paymentRef, address string, cause error) (string, error) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "cause", cause.Error()), "paid order could not reserve stock")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"payment_reference": paymentRef, "address": address}
		return s.machine.Transition(ctx, tx, orderID, enums.OrderStatusProcessing, enums.OrderStatusFailed, orders.ActorSystem, updates)
	})
	if err != nil {
		if codeOf(err) == pkgerrors.CodeStateConflict {
			return OutcomeAlreadyProcessed, nil
		}
		return "", err
	}
	return s.refundUnfulfillable(ctx, orderID, paymentRef, OversubscribedReason, OutcomeOversubscribed)
}

// closedBeforeShipping reports an order that ended CANCELLED or FAILED
// without ever being confirmed. Confirmed orders always carry a tracking id.
func closedBeforeShipping(order *models.Order) bool {
	if order.TrackingID != nil && *order.TrackingID != "" {
		return false
	}
	return order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusFailed
}

// refundClosed returns a payment captured for an order that can no longer be
// fulfilled: the buyer cancelled it, its session expired, it timed out, or
// its stock sold out. The payment is recorded before the refund so a
// redelivery retries the refund under the same idempotency key.
func (s *Service) refundClosed(ctx context.Context, order *models.Order, paymentRef string) (string, error) {
	recorded := ""
	if order.PaymentReference != nil {
		recorded = *order.PaymentReference
	}
	switch {
	case recorded == paymentRef:
		if order.Address != nil {
			// the stock check ran for this payment and failed; an earlier
			// delivery did not finish its refund
			return s.refundUnfulfillable(ctx, order.ID, paymentRef, OversubscribedReason, OutcomeOversubscribed)
		}
	case recorded != "":
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "payment_reference", paymentRef), "second payment on a closed order")
		}
		return OutcomeAlreadyProcessed, nil
	default:
		won, err := s.orders.RecordPaymentReference(ctx, order.ID, order.Status, paymentRef)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late payment")
		}
		if !won {
			return OutcomeAlreadyProcessed, nil
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "status", string(order.Status)), "payment arrived for a closed order")
		}
	}
	return s.refundUnfulfillable(ctx, order.ID, paymentRef, LatePaymentReason, OutcomeLatePayment)
}

func (s *Service) refundUnfulfillable(ctx context.Context, orderID uuid.UUID, paymentRef, reason, outcome string) (string, error) {
	_, err := s.refunds.Refund(ctx, refunds.Request{
		Purpose:          refunds.PurposeConfirmation,
		OrderID:          orderID,
		PaymentReference: paymentRef,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "refund for unfulfillable order failed", err)
		}
		return "", err
	}
	if s.notifier != nil {
		s.notifier.OrderFailed(ctx, orderID, reason)
	}
	return outcome, nil
}

// fail marks an unpaid order FAILED. Stock was never reserved for it.
func (s *Service) fail(ctx context.Context, sess *stripe.CheckoutSession) (string, error) {
	order, err := s.loadOrder(ctx, sess)
	if err != nil {
		return "", err
	}
	if order.Status != enums.OrderStatusProcessing {
		return OutcomeAlreadyProcessed, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusFailed, orders.ActorSystem, nil)
	})
	if err != nil {
		if codeOf(err) == pkgerrors.CodeStateConflict {
			return OutcomeAlreadyProcessed, nil
		}
		return "", err
	}
	if s.notifier != nil {
		s.notifier.OrderFailed(ctx, order.ID, PaymentFailedReason)
	}
	return OutcomeFailed, nil
}

func (s *Service) loadOrder(ctx context.Context, sess *stripe.CheckoutSession) (*models.Order, error) {
	userID, orderID, err := sessionRefs(sess)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_id": orderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session user does not match order")
	}
	return order, nil
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	return &sess, nil
}

func sessionRefs(sess *stripe.CheckoutSession) (uuid.UUID, uuid.UUID, error) {
	rawUser := strings.TrimSpace(sess.Metadata[pkgstripe.MetadataUserID])
	if rawUser == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	rawOrder := strings.TrimSpace(sess.Metadata[pkgstripe.MetadataOrderID])
	if rawOrder == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(rawOrder)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return userID, orderID, nil
}

func paymentIntentID(sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent == nil {
		return ""
	}
	return strings.TrimSpace(sess.PaymentIntent.ID)
}

// formatAddress joins the non-empty billing address parts with ", ".
func formatAddress(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails == nil || sess.CustomerDetails.Address == nil {
		return ""
	}
	addr := sess.CustomerDetails.Address
	parts := make([]string, 0, 6)
	for _, part := range []string{addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, ", ")
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}
