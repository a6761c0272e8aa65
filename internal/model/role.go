package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of access levels a portal user can hold.  The
// string values are what is stored in users.role and in the session token.
type Role string

const (
	RoleAdminMaster Role = "admin_master" // full access
	RoleUnitAdmin   Role = "unit_admin"   // manages users of their own unit
	RoleMedico      Role = "medico"       // authors reports, views studies
	RoleViewer      Role = "viewer"       // read-only
)

// AllRoles lists every role in a stable order.
var AllRoles = []Role{RoleAdminMaster, RoleUnitAdmin, RoleMedico, RoleViewer}

// ParseRole converts a stored or submitted value into a Role.  Matching is
// case-insensitive; anything outside the enum is rejected.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdminMaster, RoleUnitAdmin, RoleMedico, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Capability names a UI affordance.  Capabilities are hints for clients
// deciding what to render; the server-side route policy is what actually
// grants or denies access.
type Capability string

const (
	CapReport      Capability = "report"       // write reports
	CapViewExam    Capability = "view_exam"    // open studies
	CapPrintReport Capability = "print_report" // print signed reports
	CapAdmin       Capability = "admin"        // open the admin area
)

// CanReport: medico and admin_master author reports.
func (r Role) CanReport() bool { return r == RoleMedico || r == RoleAdminMaster }

// CanViewExam: every role may open studies.
func (r Role) CanViewExam() bool { return r.Valid() }

// CanPrintReport: every role may print.
func (r Role) CanPrintReport() bool { return r.Valid() }

// CanAccessAdmin: admin_master and unit_admin see the admin area.
func (r Role) CanAccessAdmin() bool { return r == RoleAdminMaster || r == RoleUnitAdmin }

// Can maps a capability name onto the helpers above.
func (r Role) Can(c Capability) bool {
	switch c {
	case CapReport:
		return r.CanReport()
	case CapViewExam:
		return r.CanViewExam()
	case CapPrintReport:
		return r.CanPrintReport()
	case CapAdmin:
		return r.CanAccessAdmin()
	}
	return false
}
