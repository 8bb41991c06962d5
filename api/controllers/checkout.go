package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const ordersPath = "/api/v1/orders/"

// Checkout opens a payment session for the caller's cart. The body carries
// the hosted page URL; Location points at the PROCESSING order it created.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		started, err := svc.InitiateCheckout(ctx, middleware.PrincipalFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(logg.WithOrderID(ctx, started.OrderID.String()), "session_id", started.SessionID), "checkout session created")
		}
		w.Header().Set("Location", ordersPath+started.OrderID.String())
		responses.WriteSuccessStatus(w, http.StatusCreated, started)
	}
}
