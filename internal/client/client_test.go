package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// fakePortal answers the handful of routes the tests need.  A session is
// valid while its token is in live.
type fakePortal struct {
	mu        sync.Mutex
	live      map[string]model.User
	logoutErr int
	lastQuery map[string]string
}

func newFakePortal() *fakePortal {
	return &fakePortal{live: map[string]model.User{}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *fakePortal) session(r *http.Request) (string, model.User, bool) {
	ck, err := r.Cookie("token")
	if err != nil {
		return "", model.User{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.live[ck.Value]
	return ck.Value, u, ok
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method + " " + r.URL.Path {
	case "POST /api/auth/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "validation failed", "fields": map[string]string{"email": "required"},
			})
			return
		}
		if body["password"] != "123456789" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		u := model.User{ID: "u-1", Email: body["email"], Role: model.RoleMedico}
		p.mu.Lock()
		p.live["tok-"+body["email"]] = u
		p.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "tok-" + body["email"], Path: "/", HttpOnly: true, MaxAge: 3600})
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
		return
	case "GET /api/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": "2026-01-01T00:00:00Z"})
		return
	}

	tok, u, ok := p.session(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	switch r.Method + " " + r.URL.Path {
	case "POST /api/auth/logout":
		p.mu.Lock()
		delete(p.live, tok)
		status := p.logoutErr
		p.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]string{"error": "storage unavailable"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1})
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	case "GET /api/auth/me":
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
	case "GET /api/studies":
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		p.mu.Lock()
		p.lastQuery = q
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"studies":    []model.Study{{ID: "study-001", PatientName: "Maria Souza"}},
			"pagination": model.Pagination{Page: 2, PerPage: 10, Total: 40, TotalPages: 4},
		})
	case "GET /api/reports/by-study/study-404":
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
	case "POST /api/reports":
		var in ReportInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusOK, map[string]any{"report": model.Report{
			ID: "r-1", StudyID: in.StudyID, Content: in.Content, Status: model.ReportStatus(in.Status),
		}})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (p *fakePortal) expire() {
	p.mu.Lock()
	p.live = map[string]model.User{}
	p.mu.Unlock()
}

func newTestClient(t *testing.T) (*Client, *fakePortal) {
	t.Helper()
	p := newFakePortal()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, p
}

type memStore struct {
	token   string
	cleared int
}

func (m *memStore) Load() (string, error) { return m.token, nil }
func (m *memStore) Save(t string) error   { m.token = t; return nil }
func (m *memStore) Clear() error          { m.token = ""; m.cleared++; return nil }

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		_, err := New(raw)
		assert.Error(t, err, raw)
	}
}

func TestClient_LoginKeepsCookie(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	u, err := c.Login(ctx, "gian", "123456789")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMedico, u.Role)
	assert.Equal(t, "tok-gian", c.Token())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gian", me.Email)
}

func TestClient_ErrorMapping(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "gian", "wrong")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid credentials", apiErr.Message)

	_, err = c.Login(ctx, "", "x")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "required", apiErr.Fields["email"])
	assert.False(t, errors.Is(err, ErrUnauthorized))

	_, err = c.Login(ctx, "gian", "123456789")
	require.NoError(t, err)
	_, err = c.Report(ctx, "study-404")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "report not found", apiErr.Message)
}

func TestClient_StudiesSendsFilters(t *testing.T) {
	c, p := newTestClient(t)
	ctx := context.Background()
	_, err := c.Login(ctx, "gian", "123456789")
	require.NoError(t, err)

	page, err := c.Studies(ctx, StudyQuery{Modality: "CT", ReportStatus: "pending", Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Studies, 1)
	assert.Equal(t, int64(4), page.Pagination.TotalPages)
	assert.Equal(t, map[string]string{"modality": "CT", "report_status": "pending", "page": "2", "limit": "10"}, p.lastQuery)
}

func TestClient_SaveReport(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	_, err := c.Login(ctx, "gian", "123456789")
	require.NoError(t, err)

	rp, err := c.SaveReport(ctx, ReportInput{StudyID: "study-004", Content: "normal", Status: "draft"})
	require.NoError(t, err)
	assert.Equal(t, "study-004", rp.StudyID)
	assert.Equal(t, "normal", rp.Content)
}

func TestClient_HealthIsPublic(t *testing.T) {
	c, _ := newTestClient(t)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestSession_LoginPersistsToken(t *testing.T) {
	c, _ := newTestClient(t)
	store := &memStore{}
	s := NewSession(c, store)

	_, err := s.Login(context.Background(), "gian", "123456789")
	require.NoError(t, err)
	assert.Equal(t, "tok-gian", store.token)
	assert.True(t, s.Authenticated())
	assert.True(t, s.Can(model.CapReport))
	assert.False(t, s.Can(model.CapAdmin))
}

func TestSession_RestoreRehydrates(t *testing.T) {
	c, p := newTestClient(t)
	p.live["tok-gian"] = model.User{ID: "u-1", Email: "gian", Role: model.RoleMedico}

	fresh, err := New(c.BaseURL())
	require.NoError(t, err)
	s := NewSession(fresh, &memStore{token: "tok-gian"})

	ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	u, _ := s.User()
	assert.Equal(t, "gian", u.Email)
}

func TestSession_RestoreWithRejectedTokenClears(t *testing.T) {
	c, _ := newTestClient(t)
	store := &memStore{token: "stale"}
	s := NewSession(c, store)

	ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Authenticated())
	assert.Empty(t, store.token)
	assert.Empty(t, c.Token())
}

func TestSession_RestoreWithoutToken(t *testing.T) {
	c, _ := newTestClient(t)
	ok, err := NewSession(c, &memStore{}).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_Any401Clears(t *testing.T) {
	c, p := newTestClient(t)
	store := &memStore{}
	s := NewSession(c, store)
	ctx := context.Background()

	_, err := s.Login(ctx, "gian", "123456789")
	require.NoError(t, err)

	p.expire()
	_, err = c.Studies(ctx, StudyQuery{})
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, s.Authenticated())
	assert.Empty(t, store.token)
	assert.Empty(t, c.Token())
}

func TestSession_LogoutClearsEvenWhenServerFails(t *testing.T) {
	c, p := newTestClient(t)
	p.logoutErr = http.StatusServiceUnavailable
	store := &memStore{}
	s := NewSession(c, store)
	ctx := context.Background()

	_, err := s.Login(ctx, "gian", "123456789")
	require.NoError(t, err)

	err = s.Logout(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.False(t, s.Authenticated())
	assert.Empty(t, store.token)
	assert.Empty(t, c.Token())
}

func TestSession_Logout(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewSession(c, nil)
	ctx := context.Background()

	_, err := s.Login(ctx, "gian", "123456789")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.Authenticated())

	_, err = c.Me(ctx)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	st := NewFileTokenStore(path)

	tok, err := st.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, st.Save("abc"))
	tok, err = st.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	require.NoError(t, st.Clear())
	require.NoError(t, st.Clear())
	tok, err = st.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestFileTokenStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	_, err := NewFileTokenStore(path).Load()
	assert.Error(t, err)
}

func TestDefaultTokenPath_HonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTALCTL_HOME", dir)
	p, err := DefaultTokenPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "token"), p)
}
