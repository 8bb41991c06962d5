package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
)

// RefundSucceeded is the only refund status treated as success.
const RefundSucceeded = "succeeded"

// Stripe accepts session lifetimes between these bounds.
const (
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

// CheckoutLine is one priced line of a hosted checkout session.
type CheckoutLine struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutRequest describes the hosted checkout session for one order.
type CheckoutRequest struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	CustomerEmail string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Lines         []CheckoutLine
	// Lifetime bounds how long the session accepts payment. Zero keeps
	// Stripe's default of 24h.
	Lifetime time.Duration
}

// CheckoutSession is the hosted page the buyer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// RefundRequest refunds a captured payment. A nil AmountCents refunds in full.
type RefundRequest struct {
	PaymentReference string
	AmountCents      *int64
	IdempotencyKey   string
	Metadata         map[string]string
}

// RefundResult carries the gateway's verdict on a refund.
type RefundResult struct {
	ID            string
	Status        string
	FailureReason string
	AmountCents   int64
}

// Succeeded reports whether the refund went through.
func (r *RefundResult) Succeeded() bool {
	return r != nil && r.Status == RefundSucceeded
}

// SessionAPI creates and expires checkout sessions.
type SessionAPI interface {
	New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

// RefundAPI creates refunds.
type RefundAPI interface {
	New(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

// Gateway adapts Stripe's checkout and refund resources to the order flows.
type Gateway struct {
	sessions SessionAPI
	refunds  RefundAPI
}

// NewGateway wires the package-level Stripe resources configured by NewClient.
func NewGateway(client *Client) *Gateway {
	if client == nil {
		return nil
	}
	return &Gateway{sessions: sessionResource{}, refunds: refundResource{}}
}

// NewGatewayWithAPIs builds a gateway over explicit resource implementations.
func NewGatewayWithAPIs(sessions SessionAPI, refunds RefundAPI) *Gateway {
	return &Gateway{sessions: sessions, refunds: refunds}
}

// CreateCheckoutSession opens a card-only payment session that collects the
// billing address and carries the order and user ids as metadata.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g == nil || g.sessions == nil {
		return nil, errors.New("stripe gateway not configured")
	}
	if len(req.Lines) == 0 {
		return nil, errors.New("checkout session requires at least one line")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Lines))
	for _, line := range req.Lines {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
				UnitAmount: stripe.Int64(line.UnitAmountCents),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		LineItems:                lineItems,
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.Lifetime > 0 {
		params.ExpiresAt = stripe.Int64(sessionDeadline(time.Now(), req.Lifetime).Unix())
	}
	params.AddMetadata(MetadataUserID, req.UserID.String())
	params.AddMetadata(MetadataOrderID, req.OrderID.String())
	params.SetIdempotencyKey("checkout-" + req.OrderID.String())

	sess, err := g.sessions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
// Stripe rejects the call once the session is complete or already expired.
func (g *Gateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if g == nil || g.sessions == nil {
		return errors.New("stripe gateway not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("checkout session id is required")
	}
	_, err := g.sessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{})
	return err
}

// sessionDeadline clamps lifetime into the range Stripe accepts.
func sessionDeadline(now time.Time, lifetime time.Duration) time.Time {
	lifetime = min(max(lifetime, minSessionLifetime), maxSessionLifetime)
	return now.Add(lifetime)
}

// CreateRefund refunds the payment intent behind an order. Gateway-level
// declines come back as a non-succeeded RefundResult, not as an error.
func (g *Gateway) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if g == nil || g.refunds == nil {
		return nil, errors.New("stripe gateway not configured")
	}
	if strings.TrimSpace(req.PaymentReference) == "" {
		return nil, errors.New("payment reference is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentReference),
	}
	if req.AmountCents != nil {
		params.Amount = stripe.Int64(*req.AmountCents)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.refunds.New(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code != "" {
			return &RefundResult{Status: string(stripe.RefundStatusFailed), FailureReason: string(stripeErr.Code)}, nil
		}
		return nil, err
	}
	return &RefundResult{
		ID:            r.ID,
		Status:        string(r.Status),
		FailureReason: string(r.FailureReason),
		AmountCents:   r.Amount,
	}, nil
}

const (
	MetadataUserID  = "userId"
	MetadataOrderID = "orderId"
)

type sessionResource struct{}

func (sessionResource) New(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (sessionResource) Expire(ctx context.Context, id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.Expire(id, params)
}

type refundResource struct{}

func (refundResource) New(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}
