package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/radiology-portal/internal/model"
)

// portal is a minimal stand-in for the API: one account, one study and
// whatever report was last saved.
type portal struct {
	mu     sync.Mutex
	tokens map[string]bool
	report *model.Report
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gian := model.User{ID: "u-gian", Email: "gian", FullName: "Gian Medico", Role: model.RoleMedico}
	route := r.Method + " " + r.URL.Path

	switch route {
	case "GET /api/health":
		reply(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": "2026-10-16T09:00:00Z"})
		return
	case "POST /api/auth/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "gian" || body["password"] != "123456789" {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		p.tokens["tok-1"] = true
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "tok-1", Path: "/", HttpOnly: true})
		reply(w, http.StatusOK, map[string]any{"user": gian})
		return
	}

	ck, err := r.Cookie("token")
	if err != nil || !p.tokens[ck.Value] {
		reply(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch {
	case route == "POST /api/auth/logout":
		delete(p.tokens, ck.Value)
		http.SetCookie(w, &http.Cookie{Name: "token", Path: "/", MaxAge: -1})
		reply(w, http.StatusOK, map[string]string{"message": "logged out"})
	case route == "GET /api/auth/me":
		reply(w, http.StatusOK, map[string]any{"user": gian})
	case route == "GET /api/studies":
		reply(w, http.StatusOK, map[string]any{
			"studies": []model.Study{{
				ID: "study-004", PatientName: "Souza, Maria", AccessionNumber: "ACC-4",
				StudyDate: "2026-10-15", Modalities: []string{"CT"},
			}},
			"pagination": model.Pagination{Page: 1, PerPage: 10, Total: 31, TotalPages: 4},
		})
	case route == "POST /api/reports":
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		p.report = &model.Report{ID: "r-1", StudyID: in["study_id"].(string), Content: in["content"].(string), Status: model.ReportDraft}
		reply(w, http.StatusOK, map[string]any{"report": p.report})
	case strings.HasPrefix(route, "GET /api/reports/by-study/"):
		if p.report == nil {
			reply(w, http.StatusNotFound, map[string]string{"error": "report not found"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"report": p.report})
	default:
		reply(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

type harness struct {
	url       string
	tokenFile string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	srv := httptest.NewServer(&portal{tokens: map[string]bool{}})
	t.Cleanup(srv.Close)
	return harness{url: srv.URL, tokenFile: filepath.Join(home, "tok")}
}

// run executes portalctl against the harness server.
func (h harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--server", h.url, "--token-file", h.tokenFile}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h harness) login(t *testing.T) {
	t.Helper()
	_, err := h.run(t, "", "login", "-e", "gian", "-p", "123456789")
	require.NoError(t, err)
}

func TestLogin_PromptsForPasswordAndStoresToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "123456789\n", "login", "--email", "gian")
	require.NoError(t, err)
	assert.Contains(t, out, "medico")
	assert.Contains(t, out, "ROLE")

	data, err := os.ReadFile(h.tokenFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tok-1")
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "login", "-e", "gian", "-p", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	_, statErr := os.Stat(h.tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWhoami_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestWhoami_JSON(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "whoami", "-o", "json")
	require.NoError(t, err)
	var got struct {
		User         model.User `json:"user"`
		Capabilities []string   `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, model.RoleMedico, got.User.Role)
	assert.Equal(t, []string{"view_exam", "report", "print_report"}, got.Capabilities)
}

func TestStudiesList_Formats(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "studies", "list", "--modality", "CT")
	require.NoError(t, err)
	assert.Contains(t, out, "Maria Souza")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "page 1 of 4 (31 studies)")

	out, err = h.run(t, "", "studies", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "patient_name: Souza, Maria")
	assert.Contains(t, out, "total_pages: 4")
	assert.NotContains(t, out, "page 1 of 4")
}

func TestReports_SaveThenGet(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	file := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(file, []byte("No acute findings.\nSecond line"), 0o600))

	out, err := h.run(t, "", "reports", "save", "study-004", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "No acute findings. ...")

	out, err = h.run(t, "", "reports", "get", "study-004", "-o", "json")
	require.NoError(t, err)
	var got struct {
		Report model.Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "No acute findings.\nSecond line", got.Report.Content)
}

func TestReports_SaveNeedsContent(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	_, err := h.run(t, "", "reports", "save", "study-004")
	assert.Error(t, err)
}

func TestLogout_ForgetsToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "logged out")
	_, statErr := os.Stat(h.tokenFile)
	assert.True(t, os.IsNotExist(statErr))

	_, err = h.run(t, "", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestUnknownOutputFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "health", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	h := newHarness(t)
	cfg := filepath.Join(t.TempDir(), "portalctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("server: "+h.url+"\noutput: json\n"), 0o600))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfg, "health"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]format{"table": formatTable, " JSON ": formatJSON, "yaml": formatYAML} {
		got, err := parseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseFormat("csv")
	assert.Error(t, err)
}
