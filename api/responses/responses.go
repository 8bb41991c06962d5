package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Untyped errors become
// INTERNAL_ERROR and never leak their text. Server errors are logged at error
// level with the full chain, client errors at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	status, apiErr := publicError(typed)
	apiErr.RequestID = w.Header().Get(RequestIDHeader)

	if logg != nil {
		fields := pkgerrors.Dump(err).Fields()
		fields["status"] = status
		if step := detailStep(typed.Details()); step != nil {
			fields["step"] = step
		}
		logCtx := logg.WithFields(ctx, fields)
		if status >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.error")
		}
	}

	writeJSON(w, status, ErrorEnvelope{Error: apiErr})
}

func publicError(typed *pkgerrors.Error) (int, APIError) {
	meta := pkgerrors.MetadataFor(typed.Code())
	apiErr := APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.ExposeMessage && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	return meta.HTTPStatus, apiErr
}

// detailStep pulls the failing checkout or refund step out of map details.
func detailStep(details any) any {
	if m, ok := details.(map[string]any); ok {
		return m["step"]
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out; a failed body write has no remedy
	_ = json.NewEncoder(w).Encode(payload)
}
