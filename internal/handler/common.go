package handler // handler defines http handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/model"
)

// StorageTimeout bounds every storage call made by a handler.  main sets it
// from DB_TIMEOUT before serving.
var StorageTimeout = 5 * time.Second

// Auditor records audit entries.  Implementations never fail the request.
type Auditor interface {
	Record(ctx context.Context, e model.AuditEntry)
}

// storageCtx derives the bounded context for one storage call.
func storageCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), StorageTimeout)
}

// identity returns the caller; routes are always behind Authenticate, so a
// missing identity is reported as 401 by the caller.
func identity(c echo.Context) (middleware.Identity, bool) {
	return middleware.IdentityFrom(c)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
}

func notFound(c echo.Context, what string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
}

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// respond writes 400 {error, fields}.
func (f fieldErrors) respond(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": f})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
}

// pageFrom reads page and limit (or per_page).  Unparseable or
// non-positive values fall back to the defaults; oversized limits clamp.
func pageFrom(c echo.Context, defPerPage int) model.PageRequest {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	raw := c.QueryParam("limit")
	if raw == "" {
		raw = c.QueryParam("per_page")
	}
	perPage, _ := strconv.Atoi(raw)
	return model.NewPageRequest(page, perPage, defPerPage)
}

// clientIP is stored with audit entries.
func clientIP(c echo.Context) *string {
	ip := c.RealIP()
	if ip == "" {
		return nil
	}
	return &ip
}

// record writes an audit entry for the current caller.
func record(c echo.Context, a Auditor, action model.AuditAction, targetType string, targetID *string) {
	e := model.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		IPAddress:  clientIP(c),
	}
	if id, ok := identity(c); ok {
		uid := id.UserID
		e.UserID = &uid
		e.UnitID = id.UnitID
	}
	a.Record(c.Request().Context(), e)
}

func ptr[T any](v T) *T { return &v }

// trimmed returns nil for nil, otherwise a pointer to the trimmed value.
func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}

// isDate accepts YYYY-MM-DD.
func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
