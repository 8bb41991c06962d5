package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Actor is who may drive a given transition.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSeller Actor = "seller"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// transitions is the complete order state graph. Anything not listed is a
// STATE_CONFLICT.
var transitions = map[edge]Actor{
	{enums.OrderStatusProcessing, enums.OrderStatusConfirmed}: ActorSystem,
	{enums.OrderStatusProcessing, enums.OrderStatusFailed}:    ActorSystem,
	{enums.OrderStatusProcessing, enums.OrderStatusCancelled}: ActorUser,
	{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}:  ActorUser,

	{enums.OrderStatusConfirmed, enums.OrderStatusReadyForShipping}: ActorSystem,
	{enums.OrderStatusReadyForShipping, enums.OrderStatusShipped}:   ActorAdmin,
	{enums.OrderStatusShipped, enums.OrderStatusOutForDelivery}:     ActorAdmin,
	{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered}:   ActorAdmin,
	{enums.OrderStatusDelivered, enums.OrderStatusReturnRequested}:  ActorUser,
	{enums.OrderStatusReturnRequested, enums.OrderStatusRefunded}:   ActorAdmin,
	{enums.OrderStatusReturnRequested, enums.OrderStatusDelivered}:  ActorAdmin,
}

// adminPath is the manual shipping sequence, one step at a time.
var adminPath = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusReadyForShipping: enums.OrderStatusShipped,
	enums.OrderStatusShipped:          enums.OrderStatusOutForDelivery,
	enums.OrderStatusOutForDelivery:   enums.OrderStatusDelivered,
}

// CanTransition reports whether actor may move an order from one status to
// another.
func CanTransition(from, to enums.OrderStatus, actor Actor) bool {
	allowed, ok := transitions[edge{from, to}]
	return ok && allowed == actor
}

// IsEdge reports whether the graph has the edge regardless of actor.
func IsEdge(from, to enums.OrderStatus) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// NextAdminStatus returns the single status an admin may advance to.
func NextAdminStatus(from enums.OrderStatus) (enums.OrderStatus, bool) {
	next, ok := adminPath[from]
	return next, ok
}

// IsCancellable reports whether a buyer may still cancel.
func IsCancellable(status enums.OrderStatus) bool {
	return CanTransition(status, enums.OrderStatusCancelled, ActorUser)
}

// ActorFor maps an authenticated caller onto an actor. The zero principal is
// the system.
func ActorFor(p auth.Principal) Actor {
	if p.IsZero() {
		return ActorSystem
	}
	switch p.Role {
	case enums.RoleAdmin:
		return ActorAdmin
	case enums.RoleSeller:
		return ActorSeller
	default:
		return ActorUser
	}
}
