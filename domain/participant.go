// Package domain contains core concepts of the daycare system.
// This file defines the Viewer and the roles it can act under.
// No runtime, network, or UI logic should be added here.
package domain

type Role string

const (
	RoleStaff    Role = "staff"
	RoleGuardian Role = "guardian"
)

func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleGuardian
}

// Viewer is the authenticated person looking at the data.
type Viewer struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Label is what audit records and message headers show for this viewer.
func (v Viewer) Label() string {
	if v.Name != "" {
		return v.Name
	}
	if v.Email != "" {
		return v.Email
	}
	return v.ID
}

func (v Viewer) IsStaff() bool { return v.Role == RoleStaff }
