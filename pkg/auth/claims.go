package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload is the identity baked into a new token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the JWT body shared with the identity service. The
// subject and user_id claims must agree.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

var _ jwt.ClaimsValidator = (*AccessTokenClaims)(nil)

// Validate runs after the parser's registered-claim checks.
func (c *AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("token missing user id")
	case !c.Role.IsValid():
		return fmt.Errorf("token carries unknown role %q", c.Role)
	case c.Subject != "" && c.Subject != c.UserID.String():
		return errors.New("token subject does not match user id")
	}
	return nil
}

// Principal returns the caller identity carried by the claims.
func (c *AccessTokenClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role}
}
