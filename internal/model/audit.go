package model

import "time"

// AuditAction enumerates what an audit entry records.
type AuditAction string

const (
	ActionLogin        AuditAction = "LOGIN"
	ActionLogout       AuditAction = "LOGOUT"
	ActionViewStudy    AuditAction = "VIEW_STUDY"
	ActionCreateReport AuditAction = "CREATE_REPORT"
	ActionUpdateReport AuditAction = "UPDATE_REPORT"
	ActionSignReport   AuditAction = "SIGN_REPORT"
	ActionCreateUnit   AuditAction = "CREATE_UNIT"
	ActionUpdateUnit   AuditAction = "UPDATE_UNIT"
	ActionCreateUser   AuditAction = "CREATE_USER"
	ActionUpdateUser   AuditAction = "UPDATE_USER"
)

// Audit target types.
const (
	TargetSession = "SESSION"
	TargetStudy   = "STUDY"
	TargetReport  = "REPORT"
	TargetUnit    = "UNIT"
	TargetUser    = "USER"
)

// AuditEntry is an append-only record of who did what to which resource.
// Entries are never updated or deleted.
type AuditEntry struct {
	ID         string      `json:"id"`
	UserID     *string     `json:"user_id"`
	UserEmail  *string     `json:"user_email,omitempty"`
	UnitID     *string     `json:"unit_id"`
	Action     AuditAction `json:"action"`
	TargetType string      `json:"target_type"`
	TargetID   *string     `json:"target_id"`
	IPAddress  *string     `json:"ip_address,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// DashboardStats summarises the study worklist for the landing page.
type DashboardStats struct {
	TotalStudies   int64        `json:"total_studies"`
	PendingReports int64        `json:"pending_reports"`
	SignedReports  int64        `json:"signed_reports"`
	StudiesToday   int64        `json:"studies_today"`
	RecentActivity []AuditEntry `json:"recent_activity"`
}
