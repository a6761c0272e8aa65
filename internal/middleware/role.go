package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/metrics"
	"github.com/iliyamo/radiology-portal/internal/model"
)

// Authorize returns a middleware that lets the request through only when
// the authenticated role is one of roles.  It must run after Authenticate;
// a missing identity is a wiring bug, logged and answered with 401.
func Authorize(roles ...model.Role) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant-time lookups.
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				Logger(c).Error("authorize reached without identity",
					zap.String("method", c.Request().Method), zap.String("route", c.Path()))
				metrics.ObserveDenied("401")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !allowed[id.Role] {
				metrics.ObserveDenied("403")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
			}
			return next(c)
		}
	}
}
