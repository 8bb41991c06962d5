package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// ExpiredReason is attached to failure notifications for abandoned checkouts.
const ExpiredReason = "payment was not completed in time"

// ServiceParams groups the order service dependencies.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Machine  *StateMachine
	Ledger   stockReleaser
	Refunds  refunder
	Sessions sessionCloser
	Notifier Notifier
	Logger   *logger.Logger
}

// Service exposes the admin, seller and buyer order operations.
type Service struct {
	repo     Repository
	tx       txRunner
	machine  *StateMachine
	ledger   stockReleaser
	refunds  refunder
	sessions sessionCloser
	notifier Notifier
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	machine := params.Machine
	if machine == nil {
		machine = NewStateMachine(params.Repo, nil)
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		machine:  machine,
		ledger:   params.Ledger,
		refunds:  params.Refunds,
		sessions: params.Sessions,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

// AdvanceStatus moves an order one step along the admin shipping path.
func (s *Service) AdvanceStatus(ctx context.Context, p auth.Principal, orderID uuid.UUID, target enums.OrderStatus) (*OrderDetail, error) {
	if err := p.Require(enums.RoleAdmin); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": target})
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, ok := NextAdminStatus(order.Status)
	if !ok || next != target {
		details := map[string]any{"from": order.Status, "to": target}
		if ok {
			details["expected"] = next
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move to the requested status").WithDetails(details)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.machine.Transition(ctx, tx, order.ID, order.Status, target, ActorAdmin, nil)
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatusChanged(ctx, order.ID)
	order.Status = target
	detail := NewOrderDetail(*order, nil)
	return &detail, nil
}

// MarkItemReady flags one of the seller's order items as ready to ship and
// advances the order once every item on it is ready.
func (s *Service) MarkItemReady(ctx context.Context, p auth.Principal, storeID, orderItemID uuid.UUID) (*ReadinessResult, error) {
	if err := p.Require(enums.RoleSeller); err != nil {
		return nil, err
	}

	store, err := s.repo.FindStore(ctx, storeID)
	if err != nil {
		return nil, notFoundOr(err, "store not found", "load store")
	}
	if store.UserID != p.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store does not belong to caller")
	}
	item, err := s.repo.FindOrderItem(ctx, orderItemID)
	if err != nil {
		return nil, notFoundOr(err, "order item not found", "load order item")
	}
	if item.StoreID != store.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order item does not belong to store")
	}

	result := &ReadinessResult{OrderID: item.OrderID, OrderItemID: item.ID}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, item.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		result.OrderStatus = order.Status

		if item.ReadyToBeShipped {
			return nil
		}
		if order.Status != enums.OrderStatusConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting shipment readiness").
				WithDetails(map[string]any{"status": order.Status})
		}

		if err := repo.MarkItemReady(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item ready")
		}
		pending, err := repo.CountItemsNotReady(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending items")
		}
		if pending > 0 {
			return nil
		}

		if err := s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusConfirmed, enums.OrderStatusReadyForShipping, ActorSystem, nil); err != nil {
			return err
		}
		result.OrderStatus = enums.OrderStatusReadyForShipping
		result.Advanced = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Advanced {
		s.notifyStatusChanged(ctx, result.OrderID)
	}
	return result, nil
}

// CancelOrder cancels the caller's order before it ships. A confirmed order
// is refunded in full and its stock released; nothing commits unless the
// refund succeeded.
func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*OrderDetail, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !IsCancellable(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	from := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.machine.Transition(ctx, tx, order.ID, from, enums.OrderStatusCancelled, ActorUser, nil); err != nil {
			return err
		}
		if from == enums.OrderStatusProcessing {
			return nil
		}

		if _, err := s.refunds.Refund(ctx, refunds.Request{
			Purpose:          refunds.PurposeCancel,
			OrderID:          order.ID,
			PaymentReference: stringValue(order.PaymentReference),
		}); err != nil {
			return err
		}
		return s.ledger.ReleaseLines(ctx, tx, inventory.LinesForOrderItems(order.Items, enums.StockMovementOrderCancelled))
	})
	if err != nil {
		return nil, err
	}

	if from == enums.OrderStatusProcessing {
		s.closeSession(ctx, order)
	}
	if s.notifier != nil {
		s.notifier.OrderCancelled(ctx, order.ID)
	}
	order.Status = enums.OrderStatusCancelled
	detail := NewOrderDetail(*order, nil)
	return &detail, nil
}

// GetOrder returns an order to its buyer, an admin, or a seller with an item
// on it. Sellers only see their own items.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*OrderDetail, error) {
	if err := p.Require(enums.RoleUser, enums.RoleAdmin, enums.RoleSeller); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch p.Role {
	case enums.RoleAdmin:
		detail := NewOrderDetail(*order, nil)
		return &detail, nil
	case enums.RoleSeller:
		ok, err := s.repo.SellerHasItemOnOrder(ctx, order.ID, p.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check seller items")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		stores := map[uuid.UUID]bool{}
		for _, item := range order.Items {
			if _, seen := stores[item.StoreID]; seen {
				continue
			}
			store, err := s.repo.FindStore(ctx, item.StoreID)
			if err != nil {
				return nil, notFoundOr(err, "store not found", "load store")
			}
			stores[item.StoreID] = store.UserID == p.UserID
		}
		detail := NewOrderDetail(*order, func(item models.OrderItem) bool { return stores[item.StoreID] })
		return &detail, nil
	default:
		if !p.Owns(order.UserID) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		detail := NewOrderDetail(*order, nil)
		return &detail, nil
	}
}

// ListForUser pages through the caller's own orders, newest first.
func (s *Service) ListForUser(ctx context.Context, p auth.Principal, params pagination.Params) (*OrderList, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	userID := p.UserID
	return s.list(ctx, ListFilter{UserID: &userID}, params)
}

// ListForStore pages through orders containing the seller's store items.
func (s *Service) ListForStore(ctx context.Context, p auth.Principal, storeID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if err := p.Require(enums.RoleSeller); err != nil {
		return nil, err
	}
	store, err := s.repo.FindStore(ctx, storeID)
	if err != nil {
		return nil, notFoundOr(err, "store not found", "load store")
	}
	if store.UserID != p.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store does not belong to caller")
	}
	return s.list(ctx, ListFilter{StoreID: &store.ID}, params)
}

// ListAll pages through every order, optionally by status.
func (s *Service) ListAll(ctx context.Context, p auth.Principal, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	if err := p.Require(enums.RoleAdmin); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	return s.list(ctx, ListFilter{Status: status}, params)
}

// ExpireStale fails PROCESSING orders created before cutoff. Orders that
// moved on concurrently are skipped.
func (s *Service) ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.FindProcessingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stale orders")
	}

	expired := 0
	var errs error
	for _, order := range stale {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusProcessing, enums.OrderStatusFailed, ActorSystem, nil)
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
		s.closeSession(ctx, &order)
		if s.notifier != nil {
			s.notifier.OrderFailed(ctx, order.ID, ExpiredReason)
		}
	}
	return expired, errs
}

// closeSession expires the checkout session of an order that stopped waiting
// for payment. A failure is only logged: a payment that still lands on the
// closed order is refunded by the webhook reconciler.
func (s *Service) closeSession(ctx context.Context, order *models.Order) {
	if s.sessions == nil || order.CheckoutSessionID == nil || *order.CheckoutSessionID == "" {
		return
	}
	if err := s.sessions.ExpireCheckoutSession(ctx, *order.CheckoutSessionID); err != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":   order.ID.String(),
			"session_id": *order.CheckoutSessionID,
			"error":      err.Error(),
		})
		s.logg.Warn(logCtx, "failed to expire checkout session")
	}
}

func (s *Service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	if _, err := params.Keyset(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.ListOrders(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *Service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *Service) notifyStatusChanged(ctx context.Context, orderID uuid.UUID) {
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, orderID)
	}
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
