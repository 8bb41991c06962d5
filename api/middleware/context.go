package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// PrincipalFromContext returns the authenticated caller, or the zero
// principal for anonymous requests.
func PrincipalFromContext(ctx context.Context) auth.Principal {
	if ctx == nil {
		return auth.Principal{}
	}
	if p, ok := ctx.Value(ctxPrincipal).(auth.Principal); ok {
		return p
	}
	return auth.Principal{}
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

func UserIDFromContext(ctx context.Context) string {
	p := PrincipalFromContext(ctx)
	if p.IsZero() {
		return ""
	}
	return p.UserID.String()
}
