package model

import "time"

// Unit is a care site.  The connection fields describe the external imaging
// server (Orthanc/DICOM node) and are kept as plain configuration data.
type Unit struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	IsActive       bool      `json:"is_active"`
	OrthancBaseURL string    `json:"orthanc_base_url"`
	AETitle        string    `json:"ae_title"`
	IPAddress      *string   `json:"ip_address"`
	Port           int       `json:"port"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnitPatch carries a coalescing update for a unit.
type UnitPatch struct {
	Name           *string
	Slug           *string
	IsActive       *bool
	OrthancBaseURL *string
	AETitle        *string
	IPAddress      *string
	Port           *int
}
