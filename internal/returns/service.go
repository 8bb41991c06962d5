// Package returns runs the buyer return workflow: request, admin review,
// refund and restock.
package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Machine  statusTransitioner
	Ledger   stockReleaser
	Refunds  refunder
	Notifier Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	tx       txRunner
	machine  statusTransitioner
	ledger   stockReleaser
	refunds  refunder
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		machine:  params.Machine,
		ledger:   params.Ledger,
		refunds:  params.Refunds,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// RequestReturn opens a return for some or all items of a delivered order.
func (s *Service) RequestReturn(ctx context.Context, p auth.Principal, orderID uuid.UUID, input RequestInput) (*ReturnRequestView, error) {
	if err := p.Require(enums.RoleUser); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be returned").
			WithDetails(map[string]any{"status": order.Status})
	}

	items, err := returnItems(order.Items, input.Items)
	if err != nil {
		return nil, err
	}
	req := &models.ReturnRequest{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  enums.ReturnRequestStatusReviewing,
		Reason:  reason,
		Items:   items,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusDelivered, enums.OrderStatusReturnRequested, orders.ActorUser, nil); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateRequest(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ReturnRequested(ctx, req.ID)
	}
	view := newReturnRequestView(*req, order.Items)
	return &view, nil
}

// AcceptReturn refunds the returned quantities and puts them back in stock.
// Nothing commits unless the gateway reports the refund succeeded.
func (s *Service) AcceptReturn(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*ReturnRequestView, error) {
	if err := p.Require(enums.RoleAdmin); err != nil {
		return nil, err
	}
	order, req, err := s.loadPending(ctx, orderID, requestID)
	if err != nil {
		return nil, err
	}

	view := newReturnRequestView(*req, order.Items)
	amount := RefundCents(order.Items, *req)
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return request has nothing to refund")
	}
	lines, err := releaseLines(order, req)
	if err != nil {
		return nil, err
	}

	resolvedAt := s.now()
	var refundID string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusReturnRequested, enums.OrderStatusRefunded, orders.ActorAdmin, nil); err != nil {
			return err
		}

		result, err := s.refunds.Refund(ctx, refunds.Request{
			Purpose:          refunds.PurposeReturn,
			OrderID:          order.ID,
			SubjectID:        req.ID,
			PaymentReference: stringValue(order.PaymentReference),
			AmountCents:      &amount,
		})
		if err != nil {
			return err
		}
		refundID = result.ID

		ok, err := s.repo.WithTx(tx).Resolve(ctx, req.ID, enums.ReturnRequestStatusApproved, resolvedAt, map[string]any{
			"refund_id":           refundID,
			"refund_amount_cents": amount,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve return request")
		}
		if !ok {
			return alreadyResolved()
		}
		return s.ledger.ReleaseLines(ctx, tx, lines)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":          order.ID.String(),
			"return_request_id": req.ID.String(),
			"refund_cents":      amount,
		})
		s.logg.Info(logCtx, "return accepted")
	}
	if s.notifier != nil {
		s.notifier.ReturnAccepted(ctx, req.ID)
	}

	view.Status = enums.ReturnRequestStatusApproved
	view.RefundID = &refundID
	view.RefundAmountCents = &amount
	view.ResolvedAt = &resolvedAt
	return &view, nil
}

// DeclineReturn closes the request without a refund and puts the order back
// to DELIVERED, where the buyer may ask again.
func (s *Service) DeclineReturn(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*ReturnRequestView, error) {
	if err := p.Require(enums.RoleAdmin); err != nil {
		return nil, err
	}
	order, req, err := s.loadPending(ctx, orderID, requestID)
	if err != nil {
		return nil, err
	}

	resolvedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Resolve(ctx, req.ID, enums.ReturnRequestStatusDeclined, resolvedAt, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve return request")
		}
		if !ok {
			return alreadyResolved()
		}
		return s.machine.Transition(ctx, tx, order.ID, enums.OrderStatusReturnRequested, enums.OrderStatusDelivered, orders.ActorAdmin, nil)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ReturnDeclined(ctx, req.ID)
	}
	view := newReturnRequestView(*req, order.Items)
	view.Status = enums.ReturnRequestStatusDeclined
	view.ResolvedAt = &resolvedAt
	return &view, nil
}

// GetReturnRequest returns the order's most recent return request.
func (s *Service) GetReturnRequest(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*ReturnRequestView, error) {
	if err := p.Require(enums.RoleAdmin); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	req, err := s.repo.LatestForOrder(ctx, order.ID)
	if err != nil {
		return nil, notFoundOr(err, "return request not found", "load return request")
	}
	view := newReturnRequestView(*req, order.Items)
	return &view, nil
}

func (s *Service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

// loadPending loads a REVIEWING request together with its RETURNREQUESTED order.
func (s *Service) loadPending(ctx context.Context, orderID, requestID uuid.UUID) (*models.Order, *models.ReturnRequest, error) {
	req, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		return nil, nil, notFoundOr(err, "return request not found", "load return request")
	}
	if req.OrderID != orderID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if req.Status != enums.ReturnRequestStatusReviewing {
		return nil, nil, alreadyResolved()
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status != enums.OrderStatusReturnRequested {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting a return decision").
			WithDetails(map[string]any{"status": order.Status})
	}
	return order, req, nil
}

// returnItems validates the selection against the order and fills in
// default quantities.
func returnItems(orderItems []models.OrderItem, inputs []ItemInput) ([]models.ReturnItem, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(orderItems))
	for _, item := range orderItems {
		byID[item.ID] = item
	}

	seen := make(map[uuid.UUID]struct{}, len(inputs))
	items := make([]models.ReturnItem, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.OrderItemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item listed more than once").
				WithDetails(map[string]any{"order_item_id": in.OrderItemID})
		}
		seen[in.OrderItemID] = struct{}{}

		item, ok := byID[in.OrderItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item does not belong to order").
				WithDetails(map[string]any{"order_item_id": in.OrderItemID})
		}
		qty := item.Quantity
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		if qty < 1 || qty > item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity out of range").
				WithDetails(map[string]any{"order_item_id": in.OrderItemID, "ordered": item.Quantity, "requested": qty})
		}
		items = append(items, models.ReturnItem{OrderItemID: item.ID, Quantity: qty})
	}
	return items, nil
}

func releaseLines(order *models.Order, req *models.ReturnRequest) ([]inventory.Line, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		byID[item.ID] = item
	}
	lines := make([]inventory.Line, 0, len(req.Items))
	for _, ri := range req.Items {
		item, ok := byID[ri.OrderItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "return item references unknown order item").
				WithDetails(map[string]any{"order_item_id": ri.OrderItemID})
		}
		lines = append(lines, inventory.Line{
			AvailableItemID: item.AvailableItemID,
			Quantity:        ri.Quantity,
			Ref: inventory.Ref{
				OrderID:     order.ID,
				OrderItemID: item.ID,
				Reason:      enums.StockMovementReturnAccepted,
			},
		})
	}
	return lines, nil
}

// RefundCents is the amount owed for a request: unit price times returned
// quantity, summed in cents.
func RefundCents(orderItems []models.OrderItem, req models.ReturnRequest) int64 {
	byID := make(map[uuid.UUID]models.OrderItem, len(orderItems))
	for _, item := range orderItems {
		byID[item.ID] = item
	}
	var total int64
	for _, ri := range req.Items {
		if item, ok := byID[ri.OrderItemID]; ok {
			total += money.LineTotalCents(item.UnitPrice, ri.Quantity)
		}
	}
	return total
}

func alreadyResolved() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "return request already resolved")
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
