// Package notifications turns order and return outcomes into outbox events
// and, on the worker side, into emails.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Notifier queues notification events after a business transaction has
// committed. Failures are logged and never reach the caller.
type Notifier struct {
	tx     txRunner
	repo   Repository
	outbox eventEmitter
	logg   *logger.Logger
}

func NewNotifier(tx txRunner, repo Repository, emitter eventEmitter, logg *logger.Logger) (*Notifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Notifier{tx: tx, repo: repo, outbox: emitter, logg: logg}, nil
}

// OrderConfirmed notifies the buyer and every store with items on the order.
func (n *Notifier) OrderConfirmed(ctx context.Context, orderID uuid.UUID) {
	n.report(ctx, "order_confirmed", orderID, n.orderWithStores(ctx, orderID, enums.EventOrderConfirmed, enums.EventStoreOrderReceived, ""))
}

// OrderCancelled notifies the buyer and the affected stores.
func (n *Notifier) OrderCancelled(ctx context.Context, orderID uuid.UUID) {
	n.report(ctx, "order_cancelled", orderID, n.orderWithStores(ctx, orderID, enums.EventOrderCancelled, enums.EventStoreOrderCancelled, ""))
}

func (n *Notifier) OrderStatusChanged(ctx context.Context, orderID uuid.UUID) {
	n.report(ctx, "order_status_changed", orderID, n.orderOnly(ctx, orderID, enums.EventOrderStatusChanged, ""))
}

func (n *Notifier) OrderFailed(ctx context.Context, orderID uuid.UUID, reason string) {
	n.report(ctx, "order_failed", orderID, n.orderOnly(ctx, orderID, enums.EventOrderFailed, reason))
}

func (n *Notifier) ReturnRequested(ctx context.Context, requestID uuid.UUID) {
	n.report(ctx, "return_requested", requestID, n.returnEvent(ctx, requestID, enums.EventReturnRequested, false))
}

// ReturnAccepted notifies the buyer and each store whose items came back.
func (n *Notifier) ReturnAccepted(ctx context.Context, requestID uuid.UUID) {
	n.report(ctx, "return_accepted", requestID, n.returnEvent(ctx, requestID, enums.EventReturnAccepted, true))
}

func (n *Notifier) ReturnDeclined(ctx context.Context, requestID uuid.UUID) {
	n.report(ctx, "return_declined", requestID, n.returnEvent(ctx, requestID, enums.EventReturnDeclined, false))
}

func (n *Notifier) orderOnly(ctx context.Context, orderID uuid.UUID, eventType enums.OutboxEventType, reason string) error {
	order, buyer, err := n.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          orderNotification(*order, *buyer, reason),
		})
	})
}

func (n *Notifier) orderWithStores(ctx context.Context, orderID uuid.UUID, buyerEvent, storeEvent enums.OutboxEventType, reason string) error {
	order, buyer, err := n.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	stores, err := n.repo.FindStores(ctx, storeIDs(order.Items, nil))
	if err != nil {
		return fmt.Errorf("load stores: %w", err)
	}

	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		err := n.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     buyerEvent,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          orderNotification(*order, *buyer, reason),
		})
		for _, sn := range storeNotifications(*order, stores, nil, reason) {
			err = multierr.Append(err, n.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     storeEvent,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data:          sn,
			}))
		}
		return err
	})
}

func (n *Notifier) returnEvent(ctx context.Context, requestID uuid.UUID, eventType enums.OutboxEventType, withStores bool) error {
	req, err := n.repo.FindReturnRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load return request: %w", err)
	}
	order, buyer, err := n.loadOrder(ctx, req.OrderID)
	if err != nil {
		return err
	}

	var stores []models.Store
	returned := make(map[uuid.UUID]int, len(req.Items))
	for _, ri := range req.Items {
		returned[ri.OrderItemID] = ri.Quantity
	}
	if withStores {
		ids := storeIDs(order.Items, func(item models.OrderItem) bool {
			_, ok := returned[item.ID]
			return ok
		})
		if stores, err = n.repo.FindStores(ctx, ids); err != nil {
			return fmt.Errorf("load stores: %w", err)
		}
	}

	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		err := n.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   req.ID,
			Data:          returnNotification(*order, *req, *buyer),
		})
		for _, sn := range storeNotifications(*order, stores, returned, req.Reason) {
			err = multierr.Append(err, n.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventStoreReturnAccepted,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data:          sn,
			}))
		}
		return err
	})
}

func (n *Notifier) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.User, error) {
	order, err := n.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order: %w", err)
	}
	buyer, err := n.repo.FindUser(ctx, order.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load buyer: %w", err)
	}
	return order, buyer, nil
}

func (n *Notifier) report(ctx context.Context, kind string, subject uuid.UUID, err error) {
	if err == nil || n.logg == nil {
		return
	}
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"notification": kind,
		"subject_id":   subject.String(),
	})
	n.logg.Error(logCtx, "failed to queue notification", err)
}
