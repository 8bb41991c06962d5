package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Principal is the authenticated caller. Services receive it as an explicit
// argument and never look identity up from request state.
type Principal struct {
	UserID uuid.UUID
	Role   enums.Role
}

// System is the principal used for gateway and scheduler driven transitions.
var System = Principal{}

// IsZero reports whether no caller is attached.
func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}

func (p Principal) Is(role enums.Role) bool {
	return !p.IsZero() && p.Role == role
}

// Require fails with UNAUTHORIZED for an anonymous caller and FORBIDDEN when
// the role is not among the allowed ones.
func (p Principal) Require(roles ...enums.Role) error {
	if p.IsZero() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	for _, role := range roles {
		if p.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for this action").
		WithDetails(map[string]any{"role": p.Role})
}

// Owns reports whether the principal is the given owner.
func (p Principal) Owns(ownerID uuid.UUID) bool {
	return !p.IsZero() && p.UserID == ownerID
}
