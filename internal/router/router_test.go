package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/config"
	"github.com/iliyamo/radiology-portal/internal/handler"
	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/model"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/service"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

// ----- in-memory stores -----

type users struct{ byID map[string]model.User }

func (u users) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, x := range u.byID {
		if x.Email == email {
			return x, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (u users) GetByID(_ context.Context, id string) (model.User, error) {
	if x, ok := u.byID[id]; ok {
		return x, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (u users) List(context.Context, *string, model.PageRequest) ([]model.User, int64, error) {
	return []model.User{}, 0, nil
}

func (u users) Create(_ context.Context, x model.User) (model.User, error) { return x, nil }

func (u users) Update(ctx context.Context, id string, _ model.UserPatch) (model.User, error) {
	return u.GetByID(ctx, id)
}

type studies struct{}

func (studies) Search(context.Context, model.StudyFilter, model.PageRequest) ([]model.Study, int64, error) {
	return []model.Study{}, 0, nil
}

func (studies) GetByID(context.Context, string) (model.Study, error) {
	return model.Study{}, repository.ErrNotFound
}

func (studies) Stats(context.Context) (model.DashboardStats, error) { return model.DashboardStats{}, nil }

type reports struct {
	mu sync.Mutex
	m  map[string]model.Report
}

func (r *reports) GetByStudy(_ context.Context, id string) (model.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.m[id]; ok {
		return x, nil
	}
	return model.Report{}, repository.ErrNotFound
}

func (r *reports) Save(_ context.Context, in model.ReportDraftInput) (model.Report, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, ok := r.m[in.StudyID]
	if !ok {
		x = model.Report{ID: "rpt-new", StudyID: in.StudyID}
	}
	x.Content, x.Status = in.Content, in.Status
	r.m[in.StudyID] = x
	return x, !ok, nil
}

type templates struct{}

func (templates) ListTemplates(context.Context, string) ([]model.ReportTemplate, error) {
	return []model.ReportTemplate{}, nil
}

func (templates) ListSnippets(context.Context) ([]model.ReportSnippet, error) {
	return []model.ReportSnippet{}, nil
}

type units struct{}

func (units) List(context.Context) ([]model.Unit, error) { return []model.Unit{}, nil }
func (units) GetByID(context.Context, string) (model.Unit, error) {
	return model.Unit{}, repository.ErrNotFound
}
func (units) Create(_ context.Context, u model.Unit) (model.Unit, error) { return u, nil }
func (units) Update(context.Context, string, model.UnitPatch) (model.Unit, error) {
	return model.Unit{}, repository.ErrNotFound
}

type audit struct{}

func (audit) Record(context.Context, model.AuditEntry) {}
func (audit) List(context.Context, model.PageRequest) ([]model.AuditEntry, int64, error) {
	return []model.AuditEntry{}, 0, nil
}
func (audit) Recent(context.Context, int) ([]model.AuditEntry, error) { return []model.AuditEntry{}, nil }

type denylist struct {
	mu sync.Mutex
	m  map[string]bool
}

func (d *denylist) Revoke(_ context.Context, jti string, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[jti] = true
	return nil
}

func (d *denylist) IsRevoked(_ context.Context, jti, _ string, _ time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m[jti], nil
}

// ----- server -----

type testServer struct {
	e      *echo.Echo
	issuer *utils.TokenIssuer
	users  users
}

func newServer(t *testing.T) testServer {
	t.Helper()
	return newLimitedServer(t, config.RateLimitConfig{Enabled: false})
}

func newLimitedServer(t *testing.T, rl config.RateLimitConfig) testServer {
	t.Helper()
	hash, err := utils.HashPassword("123456789", 4)
	require.NoError(t, err)
	u1 := "u1"

	us := users{byID: map[string]model.User{}}
	for _, role := range model.AllRoles {
		id := "usr-" + string(role)
		us.byID[id] = model.User{ID: id, Email: string(role) + "@x", Role: role, UnitID: &u1, IsActive: true, PasswordHash: hash}
	}
	us.byID["usr-gian"] = model.User{ID: "usr-gian", Email: "gian", FullName: "Gian", Role: model.RoleMedico, UnitID: &u1, IsActive: true, PasswordHash: hash}

	iss, err := utils.NewTokenIssuer("test-secret", 7*24*time.Hour)
	require.NoError(t, err)
	deny := &denylist{m: map[string]bool{}}
	auth := service.NewAuthService(us, iss, deny)

	rp := &reports{m: map[string]model.Report{
		"study-004": {ID: "rpt4", StudyID: "study-004", Content: "Esame nei limiti della norma.", Status: model.ReportSigned},
	}}

	h := Handlers{
		Auth:      handler.NewAuthHandler(auth, us, audit{}, false, 4),
		Dashboard: handler.NewDashboardHandler(studies{}, audit{}),
		Studies:   handler.NewStudyHandler(studies{}, audit{}),
		Reports:   handler.NewReportHandler(rp, audit{}),
		Templates: handler.NewTemplateHandler(templates{}),
		Units:     handler.NewUnitHandler(units{}, audit{}),
		Users:     handler.NewUserHandler(us, units{}, audit{}, 4),
		Audit:     handler.NewAuditHandler(audit{}),
	}
	e, err := New(h, Deps{
		Verifier:    iss,
		Revocations: deny,
		Timeout:     time.Second,
		RateLimit:   rl,
		Cache:       config.CacheConfig{Enabled: false},
		Log:         zap.NewNop(),
	})
	require.NoError(t, err)
	return testServer{e: e, issuer: iss, users: us}
}

func (s testServer) token(t *testing.T, role model.Role) string {
	t.Helper()
	tok, err := s.issuer.Sign(s.users.byID["usr-"+string(role)])
	require.NoError(t, err)
	return tok.Token
}

func (s testServer) do(method, path, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if mod != nil {
		mod(req)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+tok) }
}

func concrete(path string) string {
	return strings.NewReplacer(":id", "x", ":studyId", "study-004").Replace(path)
}

// ----- tests -----

func TestPolicyValidates(t *testing.T) {
	keys := map[string]bool{}
	for _, r := range Policy {
		keys[r.Key()] = true
	}
	require.NoError(t, Validate(Policy, keys))
}

func TestValidate_Rejects(t *testing.T) {
	handlers := map[string]bool{"GET /a": true, "GET /b": true}
	for name, rules := range map[string][]Rule{
		"duplicate":     {{Method: "GET", Path: "/a", Public: true}, {Method: "GET", Path: "/a", Public: true}, {Method: "GET", Path: "/b", Public: true}},
		"unknown role":  {{Method: "GET", Path: "/a", Roles: []model.Role{"root"}}, {Method: "GET", Path: "/b", Public: true}},
		"no roles":      {{Method: "GET", Path: "/a"}, {Method: "GET", Path: "/b", Public: true}},
		"public w/role": {{Method: "GET", Path: "/a", Public: true, Roles: []model.Role{model.RoleViewer}}, {Method: "GET", Path: "/b", Public: true}},
		"no handler":    {{Method: "GET", Path: "/a", Public: true}, {Method: "GET", Path: "/b", Public: true}, {Method: "GET", Path: "/c", Public: true}},
		"no rule":       {{Method: "GET", Path: "/a", Public: true}},
	} {
		assert.Error(t, Validate(rules, handlers), name)
	}
}

func TestEveryProtectedRouteRequiresSession(t *testing.T) {
	s := newServer(t)
	for _, rule := range Policy {
		if rule.Public {
			continue
		}
		rec := s.do(rule.Method, concrete(rule.Path), "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rule.Key())
	}
}

func TestAccessGrantedIffRoleAllowed(t *testing.T) {
	s := newServer(t)
	for _, rule := range Policy {
		if rule.Public {
			continue
		}
		for _, role := range model.AllRoles {
			body := ""
			if rule.Method != http.MethodGet {
				body = "{}"
			}
			rec := s.do(rule.Method, concrete(rule.Path), body, bearer(s.token(t, role)))
			if rule.Allows(role) {
				assert.NotContains(t, []int{http.StatusUnauthorized, http.StatusForbidden}, rec.Code,
					"%s as %s: %s", rule.Key(), role, rec.Body.String())
			} else {
				assert.Equal(t, http.StatusForbidden, rec.Code, "%s as %s", rule.Key(), role)
			}
		}
	}
}

func TestViewerCannotCreateUnit(t *testing.T) {
	s := newServer(t)
	body := `{"name":"Nuova","slug":"nuova"}`
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/units", body, bearer(s.token(t, model.RoleViewer))).Code)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/units", body, bearer(s.token(t, model.RoleAdminMaster))).Code)
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginReadReportRelogin(t *testing.T) {
	s := newServer(t)

	login := func() *http.Cookie {
		rec := s.do(http.MethodPost, "/api/auth/login", `{"email":"gian","password":"123456789"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			User model.User `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, model.RoleMedico, body.User.Role)
		for _, ck := range rec.Result().Cookies() {
			if ck.Name == middleware.TokenCookie {
				return ck
			}
		}
		t.Fatal("no session cookie")
		return nil
	}
	readReport := func(ck *http.Cookie) string {
		rec := s.do(http.MethodGet, "/api/reports/by-study/study-004", "", func(r *http.Request) { r.AddCookie(ck) })
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Report model.Report `json:"report"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Report.Content
	}

	first := readReport(login())
	assert.Equal(t, "Esame nei limiti della norma.", first)
	assert.Equal(t, first, readReport(login()))
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, model.RoleViewer)

	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", "", bearer(tok)).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/logout", "", bearer(tok)).Code)

	rec := s.do(http.MethodGet, "/api/auth/me", "", bearer(tok))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, rec.Body.String())
}

func TestWrongPasswordIndistinguishableFromUnknownUser(t *testing.T) {
	s := newServer(t)
	a := s.do(http.MethodPost, "/api/auth/login", `{"email":"gian","password":"wrong"}`, nil)
	b := s.do(http.MethodPost, "/api/auth/login", `{"email":"nobody","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, a.Code)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestRateLimitKeysOnAuthenticatedUser(t *testing.T) {
	s := newLimitedServer(t, config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "user", Prefix: "rl",
	})

	medico, viewer := s.token(t, model.RoleMedico), s.token(t, model.RoleViewer)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", "", bearer(medico)).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", "", bearer(viewer)).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodGet, "/api/auth/me", "", bearer(medico)).Code)

	// unauthenticated calls are rejected before they can drain a bucket
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "", nil).Code)
	}
}
