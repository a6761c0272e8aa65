package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// Rule grants access to one route.  A public rule needs no session; every
// other rule lists the exact roles allowed, with no implicit inheritance.
type Rule struct {
	Method string
	Path   string
	Roles  []model.Role
	Public bool
}

// Key identifies the route of a rule, e.g. "GET /api/studies".
func (r Rule) Key() string { return routeKey(r.Method, r.Path) }

// Allows reports whether role may call the route.
func (r Rule) Allows(role model.Role) bool {
	if r.Public {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func routeKey(method, path string) string { return method + " " + path }

var (
	everyone = model.AllRoles
	admins   = []model.Role{model.RoleAdminMaster, model.RoleUnitAdmin}
	authors  = []model.Role{model.RoleAdminMaster, model.RoleMedico}
	master   = []model.Role{model.RoleAdminMaster}
)

// Policy is the access table of the API.  Routes are registered from it,
// so a route without a rule cannot exist.
var Policy = []Rule{
	{Method: http.MethodGet, Path: "/api/health", Public: true},
	{Method: http.MethodGet, Path: "/metrics", Public: true},
	{Method: http.MethodPost, Path: "/api/auth/login", Public: true},

	{Method: http.MethodPost, Path: "/api/auth/logout", Roles: everyone},
	{Method: http.MethodGet, Path: "/api/auth/me", Roles: everyone},
	{Method: http.MethodPut, Path: "/api/auth/me", Roles: everyone},

	{Method: http.MethodGet, Path: "/api/dashboard/stats", Roles: everyone},

	{Method: http.MethodGet, Path: "/api/studies", Roles: everyone},
	{Method: http.MethodGet, Path: "/api/studies/:id", Roles: everyone},

	{Method: http.MethodGet, Path: "/api/reports/by-study/:studyId", Roles: everyone},
	{Method: http.MethodPost, Path: "/api/reports", Roles: authors},

	{Method: http.MethodGet, Path: "/api/templates", Roles: everyone},
	{Method: http.MethodGet, Path: "/api/templates/snippets", Roles: everyone},

	{Method: http.MethodGet, Path: "/api/units", Roles: everyone},
	{Method: http.MethodPost, Path: "/api/units", Roles: master},
	{Method: http.MethodPut, Path: "/api/units/:id", Roles: master},

	{Method: http.MethodGet, Path: "/api/users", Roles: admins},
	{Method: http.MethodPost, Path: "/api/users", Roles: admins},
	{Method: http.MethodPut, Path: "/api/users/:id", Roles: admins},

	{Method: http.MethodGet, Path: "/api/audit", Roles: master},
}

// Validate checks a policy against the handlers that will serve it: every
// role must be known, protected rules need at least one role, public rules
// none, no route may appear twice, and rules and handlers must match one
// to one.
func Validate(rules []Rule, handlers map[string]bool) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		key := r.Key()
		if r.Method == "" || !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("%s: malformed route", key))
		}
		if seen[key] {
			errs = append(errs, fmt.Errorf("%s: duplicate rule", key))
		}
		seen[key] = true

		switch {
		case r.Public && len(r.Roles) > 0:
			errs = append(errs, fmt.Errorf("%s: public rule lists roles", key))
		case !r.Public && len(r.Roles) == 0:
			errs = append(errs, fmt.Errorf("%s: protected rule without roles", key))
		}
		for _, role := range r.Roles {
			if !role.Valid() {
				errs = append(errs, fmt.Errorf("%s: unknown role %q", key, role))
			}
		}
		if !handlers[key] {
			errs = append(errs, fmt.Errorf("%s: no handler", key))
		}
	}
	for key := range handlers {
		if !seen[key] {
			errs = append(errs, fmt.Errorf("%s: handler without rule", key))
		}
	}
	return errors.Join(errs...)
}
