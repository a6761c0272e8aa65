package model

import (
	"strings"
	"time"
)

// Study is an imaging exam record imported from the external imaging
// source.  The portal treats it as read-only except for ReportStatus, which
// mirrors the status of the study's report (nil while no report exists).
type Study struct {
	ID               string        `json:"id"`
	UnitID           *string       `json:"unit_id"`
	UnitName         *string       `json:"unit_name,omitempty"`
	StudyInstanceUID string        `json:"study_instance_uid"`
	PatientName      string        `json:"patient_name"`
	PatientID        string        `json:"patient_id"`
	AccessionNumber  string        `json:"accession_number"`
	StudyDate        string        `json:"study_date"` // YYYY-MM-DD
	StudyTime        string        `json:"study_time"` // HH:MM:SS
	Modalities       []string      `json:"modalities"`
	Description      string        `json:"description"`
	ReportStatus     *ReportStatus `json:"report_status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Modalities known to the portal (DICOM modality codes).
var Modalities = []string{"CR", "CT", "MR", "US", "DX", "MG", "XA", "RF", "NM", "PT", "OT"}

// SplitModalities parses the comma separated column value.
func SplitModalities(s string) []string {
	out := []string{}
	for _, m := range strings.Split(s, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// StudyFilter holds the optional filters of a study listing.  Zero values
// are no-ops; set filters combine with AND.
type StudyFilter struct {
	PatientName     string // case-insensitive substring
	AccessionNumber string // substring
	Modality        string // set membership
	StudyDate       string // exact date
	DateFrom        string // inclusive
	DateTo          string // inclusive
	ReportStatus    string // "pending" for no report, otherwise an exact status
}

// FormatPatientName turns "SURNAME, NAME" into "NAME SURNAME".
func FormatPatientName(name string) string {
	if !strings.Contains(name, ",") {
		return name
	}
	parts := strings.Split(name, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}
