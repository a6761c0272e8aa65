package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	accessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_access_denied_total",
		Help: "Requests rejected by the access control layer",
	}, []string{"status"})

	reportSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_report_saves_total",
		Help: "Report upserts by outcome",
	}, []string{"outcome"})

	auditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_audit_events_total",
		Help: "Audit entries by delivery path",
	}, []string{"sink"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt ("success", "invalid", "error").
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveDenied counts a 401 or 403 issued by the middleware.
func ObserveDenied(status string) {
	accessDenied.WithLabelValues(status).Inc()
}

// ObserveReportSave counts an upsert ("created", "updated").
func ObserveReportSave(outcome string) {
	reportSaves.WithLabelValues(outcome).Inc()
}

// ObserveAudit counts where an audit entry went ("queue", "db", "dropped").
func ObserveAudit(sink string) {
	auditEvents.WithLabelValues(sink).Inc()
}
