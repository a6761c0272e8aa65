package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/metrics"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

// TokenCookie is the name of the HttpOnly session cookie.
const TokenCookie = "token"

// TokenVerifier checks a raw session token.
type TokenVerifier interface {
	Verify(raw string) (*utils.Claims, error)
}

// RevocationChecker reports whether a token was logged out, or its user's
// sessions were ended after issuedAt.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

// tokenFromRequest reads the session cookie first and falls back to an
// Authorization: Bearer header.
func tokenFromRequest(c echo.Context) string {
	if ck, err := c.Cookie(TokenCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Authenticate returns an Echo middleware that requires a valid, unrevoked
// session token and stores the caller's Identity in the context.  A token
// stops working once its user is deactivated or changes role or unit.  Missing
// tokens and invalid ones are both answered with 401; a revocation store
// that cannot be reached yields 503 rather than letting the request through.
func Authenticate(verifier TokenVerifier, revocations RevocationChecker, timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				metrics.ObserveDenied("401")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				metrics.ObserveDenied("401")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			var issuedAt time.Time
			if claims.IssuedAt != nil {
				issuedAt = claims.IssuedAt.Time
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			revoked, err := revocations.IsRevoked(ctx, claims.ID, claims.UserID(), issuedAt)
			if err != nil {
				Logger(c).Error("revocation check failed", zap.Error(err))
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
			}
			if revoked {
				metrics.ObserveDenied("401")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			id := Identity{
				UserID:  claims.UserID(),
				Email:   claims.Email,
				Role:    claims.Role,
				UnitID:  claims.UnitID,
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				id.ExpiresAt = claims.ExpiresAt.Time
			}
			SetIdentity(c, id)
			return next(c)
		}
	}
}
