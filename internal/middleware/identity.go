package middleware

// identity.go defines the authenticated principal stored in the echo
// context and the helpers shared across middleware and handlers.

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/model"
)

const (
	identityKey = "identity"
	loggerKey   = "logger"
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID    string
	Email     string
	Role      model.Role
	UnitID    *string
	TokenID   string
	ExpiresAt time.Time
}

// SetIdentity stores id on the context.  user_id and role are also set as
// plain values, which the rate limiter keys on.
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
	c.Set("user_id", id.UserID)
	c.Set("role", string(id.Role))
}

// IdentityFrom returns the identity placed by Authenticate.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// Logger returns the request-scoped logger set by RequestLogger, or the
// global zap logger outside of it.
func Logger(c echo.Context) *zap.Logger {
	if l, ok := c.Get(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.L()
}

// currentUserID extracts a user identifier for keys; "anon" when no user
// is authenticated.
func currentUserID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.UserID != "" {
		return id.UserID
	}
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
