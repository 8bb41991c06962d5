package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// StateMachine applies status transitions as compare-and-swap updates on the
// caller's transaction.
type StateMachine struct {
	repo    Repository
	metrics transitionRecorder
}

func NewStateMachine(repo Repository, metrics transitionRecorder) *StateMachine {
	return &StateMachine{repo: repo, metrics: metrics}
}

// Transition moves orderID from `from` to `to` on behalf of actor. updates
// are extra columns written by the same statement. An edge missing from the
// graph, or a row no longer in `from`, yields STATE_CONFLICT and no change.
func (m *StateMachine) Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor Actor, updates map[string]any) error {
	if !CanTransition(from, to, actor) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
			WithDetails(map[string]any{"from": from, "to": to, "actor": actor})
	}

	ok, err := m.repo.WithTx(tx).CompareAndSetStatus(ctx, orderID, from, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer in the expected status").
			WithDetails(map[string]any{"expected": from, "to": to})
	}

	if m.metrics != nil {
		m.metrics.IncTransition(string(from), string(to))
	}
	return nil
}
