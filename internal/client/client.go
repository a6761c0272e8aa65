// Package client is a Go client for the radiology portal API.  It keeps the
// session cookie in a cookie jar, the same way a browser would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iliyamo/radiology-portal/internal/middleware"
	"github.com/iliyamo/radiology-portal/internal/model"
)

// ErrUnauthorized matches any 401 answer, via errors.Is on *APIError.
var ErrUnauthorized = errors.New("client: unauthorized")

// APIError is a non-2xx answer from the portal.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("portal: %d %s", e.Status, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		keys = append(keys, k+": "+v)
	}
	return fmt.Sprintf("portal: %d %s (%s)", e.Status, e.Message, strings.Join(keys, "; "))
}

// Is lets errors.Is(err, ErrUnauthorized) succeed for 401s.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client talks to one portal instance.  It is safe for concurrent use.
type Client struct {
	base           *url.URL
	http           *http.Client
	userAgent      string
	onUnauthorized func()
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.  A cookie jar is added
// when hc has none.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.Timeout = d } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// New builds a client for baseURL (scheme and host, e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be http(s)://host", baseURL)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: "portalctl/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the portal address the client was built for.
func (c *Client) BaseURL() string { return c.base.String() }

// Token returns the session token currently held in the jar, or "".
func (c *Client) Token() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == middleware.TokenCookie {
			return ck.Value
		}
	}
	return ""
}

// SetToken puts tok into the jar; an empty tok drops the cookie.
func (c *Client) SetToken(tok string) {
	ck := &http.Cookie{Name: middleware.TokenCookie, Value: tok, Path: "/"}
	if tok == "" {
		ck.MaxAge = -1
	}
	c.http.Jar.SetCookies(c.base, []*http.Cookie{ck})
}

// OnUnauthorized registers fn to run whenever the server answers 401.
// Register it before the client is shared between goroutines.
func (c *Client) OnUnauthorized(fn func()) { c.onUnauthorized = fn }

// ----- transport -----

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&eb); err == nil && eb.Error != "" {
			apiErr.Message = eb.Error
			apiErr.Fields = eb.Fields
		}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func pageQuery(q url.Values, page, limit int) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// ----- auth -----

type userEnvelope struct {
	User model.User `json:"user"`
}

// Login exchanges credentials for a session cookie and returns the user.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"email": email, "password": password}, &out)
	return out.User, err
}

// Logout revokes the session on the server.  The jar is cleared by the
// server's expiring cookie.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
}

// Me returns the account behind the current session.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out)
	return out.User, err
}

// ProfileUpdate is the self-service subset of a user.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UpdateMe changes the caller's own name or password.
func (c *Client) UpdateMe(ctx context.Context, p ProfileUpdate) (model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPut, "/api/auth/me", nil, p, &out)
	return out.User, err
}

// ----- studies & reports -----

// StudyQuery mirrors the study listing filters.  Zero values are omitted.
type StudyQuery struct {
	PatientName     string
	AccessionNumber string
	Modality        string
	StudyDate       string
	DateFrom        string
	DateTo          string
	ReportStatus    string
	Page            int
	Limit           int
}

func (q StudyQuery) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("patient_name", q.PatientName)
	set("accession_number", q.AccessionNumber)
	set("modality", q.Modality)
	set("study_date", q.StudyDate)
	set("date_from", q.DateFrom)
	set("date_to", q.DateTo)
	set("report_status", q.ReportStatus)
	return pageQuery(v, q.Page, q.Limit)
}

// StudyPage is one page of studies.
type StudyPage struct {
	Studies    []model.Study    `json:"studies"`
	Pagination model.Pagination `json:"pagination"`
}

func (c *Client) Studies(ctx context.Context, q StudyQuery) (StudyPage, error) {
	var out StudyPage
	err := c.do(ctx, http.MethodGet, "/api/studies", q.values(), nil, &out)
	return out, err
}

func (c *Client) Study(ctx context.Context, id string) (model.Study, error) {
	var out struct {
		Study model.Study `json:"study"`
	}
	err := c.do(ctx, http.MethodGet, "/api/studies/"+url.PathEscape(id), nil, nil, &out)
	return out.Study, err
}

type reportEnvelope struct {
	Report model.Report `json:"report"`
}

// Report fetches the report attached to a study.
func (c *Client) Report(ctx context.Context, studyID string) (model.Report, error) {
	var out reportEnvelope
	err := c.do(ctx, http.MethodGet, "/api/reports/by-study/"+url.PathEscape(studyID), nil, nil, &out)
	return out.Report, err
}

// ReportInput is the body of a report save.  Status defaults to draft.
type ReportInput struct {
	StudyID    string  `json:"study_id"`
	Content    string  `json:"content"`
	Status     string  `json:"status,omitempty"`
	TemplateID *string `json:"template_id,omitempty"`
}

// SaveReport creates or updates the study's single report.
func (c *Client) SaveReport(ctx context.Context, in ReportInput) (model.Report, error) {
	var out reportEnvelope
	err := c.do(ctx, http.MethodPost, "/api/reports", nil, in, &out)
	return out.Report, err
}

func (c *Client) Templates(ctx context.Context, modality string) ([]model.ReportTemplate, error) {
	var q url.Values
	if modality != "" {
		q = url.Values{"modality": {modality}}
	}
	var out struct {
		Templates []model.ReportTemplate `json:"templates"`
	}
	err := c.do(ctx, http.MethodGet, "/api/templates", q, nil, &out)
	return out.Templates, err
}

func (c *Client) Snippets(ctx context.Context) ([]model.ReportSnippet, error) {
	var out struct {
		Snippets []model.ReportSnippet `json:"snippets"`
	}
	err := c.do(ctx, http.MethodGet, "/api/templates/snippets", nil, nil, &out)
	return out.Snippets, err
}

// ----- admin -----

type unitEnvelope struct {
	Unit model.Unit `json:"unit"`
}

func (c *Client) Units(ctx context.Context) ([]model.Unit, error) {
	var out struct {
		Units []model.Unit `json:"units"`
	}
	err := c.do(ctx, http.MethodGet, "/api/units", nil, nil, &out)
	return out.Units, err
}

// UnitInput is a unit create or coalescing update.
type UnitInput struct {
	Name           *string `json:"name,omitempty"`
	Slug           *string `json:"slug,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	OrthancBaseURL *string `json:"orthanc_base_url,omitempty"`
	AETitle        *string `json:"ae_title,omitempty"`
	IPAddress      *string `json:"ip_address,omitempty"`
	Port           *int    `json:"port,omitempty"`
}

func (c *Client) CreateUnit(ctx context.Context, in UnitInput) (model.Unit, error) {
	var out unitEnvelope
	err := c.do(ctx, http.MethodPost, "/api/units", nil, in, &out)
	return out.Unit, err
}

func (c *Client) UpdateUnit(ctx context.Context, id string, in UnitInput) (model.Unit, error) {
	var out unitEnvelope
	err := c.do(ctx, http.MethodPut, "/api/units/"+url.PathEscape(id), nil, in, &out)
	return out.Unit, err
}

// UserPage is one page of accounts.
type UserPage struct {
	Users      []model.User     `json:"users"`
	Pagination model.Pagination `json:"pagination"`
}

// Users lists accounts.  unitID narrows the listing for admin_master.
func (c *Client) Users(ctx context.Context, page, limit int, unitID string) (UserPage, error) {
	q := url.Values{}
	if unitID != "" {
		q.Set("unit_id", unitID)
	}
	var out UserPage
	err := c.do(ctx, http.MethodGet, "/api/users", pageQuery(q, page, limit), nil, &out)
	return out, err
}

// UserInput is a user create or coalescing update.
type UserInput struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Role     *string `json:"role,omitempty"`
	UnitID   *string `json:"unit_id,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (c *Client) CreateUser(ctx context.Context, in UserInput) (model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPost, "/api/users", nil, in, &out)
	return out.User, err
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UserInput) (model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(id), nil, in, &out)
	return out.User, err
}

// AuditPage is one page of the audit log, newest first.
type AuditPage struct {
	Logs       []model.AuditEntry `json:"logs"`
	Pagination model.Pagination   `json:"pagination"`
}

func (c *Client) Audit(ctx context.Context, page, limit int) (AuditPage, error) {
	var out AuditPage
	err := c.do(ctx, http.MethodGet, "/api/audit", pageQuery(nil, page, limit), nil, &out)
	return out, err
}

func (c *Client) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	var out model.DashboardStats
	err := c.do(ctx, http.MethodGet, "/api/dashboard/stats", nil, nil, &out)
	return out, err
}

// HealthStatus is the liveness answer.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}
