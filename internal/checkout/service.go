// Package checkout turns a buyer's cart into a PROCESSING order and a hosted
// payment session. Stock is not touched until the payment is confirmed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const (
	successPath = "/success"
	cancelPath  = "/checkout"

	// sessionMargin keeps the payment session closing before the order
	// expiry job can fail the order.
	sessionMargin = 10 * time.Minute
)

// Service executes checkout orchestration.
type Service interface {
	InitiateCheckout(ctx context.Context, p auth.Principal) (*Result, error)
}

// ServiceParams groups the checkout dependencies.
type ServiceParams struct {
	Tx         txRunner
	Repo       Repository
	Carts      cartReader
	Gateway    PaymentGateway
	Machine    statusTransitioner
	BaseURL    string
	Currency   string
	// PendingTTL is how long a PROCESSING order waits for payment.
	PendingTTL time.Duration
	Logger     *logger.Logger
}

type service struct {
	tx       txRunner
	repo     Repository
	carts    cartReader
	gateway  PaymentGateway
	machine  statusTransitioner
	baseURL  string
	currency string
	lifetime time.Duration
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(params.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("app base url required")
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		carts:    params.Carts,
		gateway:  params.Gateway,
		machine:  params.Machine,
		baseURL:  baseURL,
		currency: params.Currency,
		lifetime: sessionLifetime(params.PendingTTL),
		logg:     params.Logger,
	}, nil
}

// sessionLifetime is the pending TTL minus sessionMargin. Zero leaves the
// gateway default.
func sessionLifetime(pendingTTL time.Duration) time.Duration {
	if pendingTTL <= 0 {
		return 0
	}
	if pendingTTL <= 2*sessionMargin {
		return pendingTTL / 2
	}
	return pendingTTL - sessionMargin
}

// InitiateCheckout snapshots the caller's cart into a PROCESSING order and
// opens the payment session for it. A gateway failure marks the order FAILED.
func (s *service) InitiateCheckout(ctx context.Context, p auth.Principal) (*Result, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, p)
	if err != nil {
		return nil, err
	}
	if short := shortLines(lines); len(short) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "some cart items exceed available stock").
			WithDetails(short)
	}

	buyer, err := s.repo.FindUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	order := newOrder(p, lines)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, pkgstripe.CheckoutRequest{
		OrderID:       order.ID,
		UserID:        p.UserID,
		CustomerEmail: buyer.Email,
		Currency:      s.currency,
		SuccessURL:    s.baseURL + successPath,
		CancelURL:     s.baseURL + cancelPath,
		Lines:         checkoutLines(lines),
		Lifetime:      s.lifetime,
	})
	if err != nil {
		s.failOrder(ctx, order, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "unable to start payment session")
	}

	if err := s.repo.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
		if errors.Is(err, ErrOrderNotProcessing) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order changed while starting payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store checkout session")
	}

	return &Result{SessionID: session.ID, URL: session.URL, OrderID: order.ID}, nil
}

func (s *service) loadLines(ctx context.Context, p auth.Principal) ([]cart.LineRow, error) {
	record, err := s.carts.FindCartByUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emptyCart()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	lines, err := s.carts.ListLines(ctx, record.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	if len(lines) == 0 {
		return nil, emptyCart()
	}
	return lines, nil
}

func (s *service) failOrder(ctx context.Context, order *models.Order, cause error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusFailed, orders.ActorSystem, nil)
	})
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      order.ID.String(),
		"gateway_error": cause.Error(),
	})
	if err != nil {
		s.logg.Error(logCtx, "failed to mark order failed after gateway error", err)
		return
	}
	s.logg.Warn(logCtx, "checkout session creation failed")
}

func newOrder(p auth.Principal, lines []cart.LineRow) *models.Order {
	order := &models.Order{
		UserID: p.UserID,
		Status: enums.OrderStatusProcessing,
		Items:  make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			StoreID:         line.StoreID,
			ProductID:       line.ProductID,
			ProductItemID:   line.ProductItemID,
			AvailableItemID: line.AvailableItemID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPrice:       line.CurrentPrice,
		})
	}
	return order
}

func checkoutLines(lines []cart.LineRow) []pkgstripe.CheckoutLine {
	out := make([]pkgstripe.CheckoutLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, pkgstripe.CheckoutLine{
			Name:            lineName(line),
			UnitAmountCents: money.ToCents(line.CurrentPrice),
			Quantity:        int64(line.Quantity),
		})
	}
	return out
}

func lineName(line cart.LineRow) string {
	parts := make([]string, 0, 2)
	for _, part := range []string{line.ProductItemName, line.Size} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return line.ProductName
	}
	return fmt.Sprintf("%s (%s)", line.ProductName, strings.Join(parts, ", "))
}

func shortLines(lines []cart.LineRow) []ShortLine {
	var short []ShortLine
	for _, line := range lines {
		if line.Quantity > line.NumInStock {
			short = append(short, ShortLine{
				CartItemID:      line.ID,
				AvailableItemID: line.AvailableItemID,
				Requested:       line.Quantity,
				InStock:         line.NumInStock,
			})
		}
	}
	return short
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
}
