package model

import (
	"fmt"
	"strings"
	"time"
)

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	ReportDraft   ReportStatus = "draft"
	ReportSigned  ReportStatus = "signed"
	ReportRevised ReportStatus = "revised"
)

// ParseReportStatus validates a submitted status; empty means draft.
func ParseReportStatus(s string) (ReportStatus, error) {
	switch st := ReportStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return ReportDraft, nil
	case ReportDraft, ReportSigned, ReportRevised:
		return st, nil
	}
	return "", fmt.Errorf("unknown report status %q", s)
}

// Report is the free-text interpretation of exactly one study.
// The reports table has a unique key on study_id.
type Report struct {
	ID           string       `json:"id"`
	StudyID      string       `json:"study_id"`
	UnitID       *string      `json:"unit_id"`
	AuthorUserID string       `json:"author_user_id"`
	AuthorName   *string      `json:"author_name,omitempty"`
	TemplateID   *string      `json:"template_id"`
	Content      string       `json:"content"`
	Status       ReportStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	SignedAt     *time.Time   `json:"signed_at"`
}

// ReportDraftInput is what a save request carries.
type ReportDraftInput struct {
	StudyID    string
	AuthorID   string
	TemplateID *string
	Content    string
	Status     ReportStatus
}

// ReportTemplate is a reusable report body, optionally scoped to a unit
// and a modality.
type ReportTemplate struct {
	ID        string    `json:"id"`
	UnitID    *string   `json:"unit_id"`
	Name      string    `json:"name"`
	Modality  *string   `json:"modality"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportSnippet is a short phrase inserted while editing a report.
type ReportSnippet struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Body     string `json:"body"`
}
