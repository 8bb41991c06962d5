package returns

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalreturns "github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type Service interface {
	RequestReturn(ctx context.Context, p auth.Principal, orderID uuid.UUID, input internalreturns.RequestInput) (*internalreturns.ReturnRequestView, error)
	AcceptReturn(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*internalreturns.ReturnRequestView, error)
	DeclineReturn(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*internalreturns.ReturnRequestView, error)
	GetReturnRequest(ctx context.Context, p auth.Principal, orderID uuid.UUID) (*internalreturns.ReturnRequestView, error)
}

// Request opens a return on a delivered order.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeUnavailable(w, r, logg)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input internalreturns.RequestInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Reason = validators.SanitizeString(input.Reason, 1000)

		view, err := svc.RequestReturn(r.Context(), middleware.PrincipalFromContext(r.Context()), orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// Latest returns the most recent return request of an order.
func Latest(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeUnavailable(w, r, logg)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetReturnRequest(r.Context(), middleware.PrincipalFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Accept refunds the returned items and restocks them.
func Accept(svc Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(logg, func(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*internalreturns.ReturnRequestView, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable")
		}
		return svc.AcceptReturn(ctx, p, orderID, requestID)
	})
}

func Decline(svc Service, logg *logger.Logger) http.HandlerFunc {
	return resolve(logg, func(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*internalreturns.ReturnRequestView, error) {
		if svc == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable")
		}
		return svc.DeclineReturn(ctx, p, orderID, requestID)
	})
}

type resolveFunc func(ctx context.Context, p auth.Principal, orderID, requestID uuid.UUID) (*internalreturns.ReturnRequestView, error)

func resolve(logg *logger.Logger, fn resolveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "returnRequestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		view, err := fn(ctx, middleware.PrincipalFromContext(r.Context()), orderID, requestID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func writeUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
}
