package router // package router defines how HTTP routes are registered for the API

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/config"
	"github.com/iliyamo/radiology-portal/internal/handler"
	"github.com/iliyamo/radiology-portal/internal/middleware"
)

// Handlers are the resource handlers served by the API.
type Handlers struct {
	Auth      *handler.AuthHandler
	Dashboard *handler.DashboardHandler
	Studies   *handler.StudyHandler
	Reports   *handler.ReportHandler
	Templates *handler.TemplateHandler
	Units     *handler.UnitHandler
	Users     *handler.UserHandler
	Audit     *handler.AuditHandler
}

// Deps carries everything New needs besides the handlers.
type Deps struct {
	Verifier    middleware.TokenVerifier
	Revocations middleware.RevocationChecker
	Timeout     time.Duration
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	Redis       *redis.Client // nil disables the cache and keeps rate limits local
	Log         *zap.Logger
	Production  bool
	CORSOrigins []string // empty disables CORS handling
}

// cachedRoutes are served through the Redis response cache.
var cachedRoutes = map[string]bool{
	"GET /api/templates":          true,
	"GET /api/templates/snippets": true,
}

func (h Handlers) table() map[string]echo.HandlerFunc {
	return map[string]echo.HandlerFunc{
		"GET /api/health":      handler.Health,
		"GET /metrics":         echo.WrapHandler(promhttp.Handler()),
		"POST /api/auth/login": h.Auth.Login,

		"POST /api/auth/logout": h.Auth.Logout,
		"GET /api/auth/me":      h.Auth.Me,
		"PUT /api/auth/me":      h.Auth.UpdateMe,

		"GET /api/dashboard/stats": h.Dashboard.Stats,

		"GET /api/studies":     h.Studies.List,
		"GET /api/studies/:id": h.Studies.Get,

		"GET /api/reports/by-study/:studyId": h.Reports.GetByStudy,
		"POST /api/reports":                  h.Reports.Save,

		"GET /api/templates":          h.Templates.List,
		"GET /api/templates/snippets": h.Templates.Snippets,

		"GET /api/units":     h.Units.List,
		"POST /api/units":    h.Units.Create,
		"PUT /api/units/:id": h.Units.Update,

		"GET /api/users":     h.Users.List,
		"POST /api/users":    h.Users.Create,
		"PUT /api/users/:id": h.Users.Update,

		"GET /api/audit": h.Audit.List,
	}
}

// New builds the echo instance: global middleware first, then one route
// per Policy rule with Authenticate and Authorize(rule roles) in front of
// every protected handler.  The rate limiter runs after authentication so
// user-keyed strategies see the caller; public routes are keyed by IP.
// It fails when the policy does not validate.
func New(h Handlers, d Deps) (*echo.Echo, error) {
	table := h.table()
	known := make(map[string]bool, len(table))
	for k := range table {
		known[k] = true
	}
	if err := Validate(Policy, known); err != nil {
		return nil, fmt.Errorf("access policy: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Production, d.Log)

	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())
	if len(d.CORSOrigins) > 0 {
		// the session cookie only travels cross-origin with credentials allowed
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
			AllowCredentials: true,
		}))
	}
	// one limiter for all routes so they share a bucket store
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	authn := middleware.Authenticate(d.Verifier, d.Revocations, d.Timeout)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	for _, rule := range Policy {
		var chain []echo.MiddlewareFunc
		if !rule.Public {
			chain = append(chain, authn, middleware.Authorize(rule.Roles...))
		}
		chain = append(chain, limit)
		if cachedRoutes[rule.Key()] {
			chain = append(chain, cache)
		}
		e.Add(rule.Method, rule.Path, table[rule.Key()], chain...)
	}
	return e, nil
}
