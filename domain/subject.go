package domain

import (
	"slices"
	"time"
)

type Department string

const (
	Smabarna    Department = "Småbarna"
	Mellombarna Department = "Mellombarna"
	Storbarna   Department = "Storbarna"
)

// Departments lists the fixed set in display order, youngest group first.
func Departments() []Department {
	return []Department{Smabarna, Mellombarna, Storbarna}
}

func (d Department) Valid() bool {
	return slices.Contains(Departments(), d)
}

// Subject is a child enrolled in the daycare.
// Identity fields are owned by roster management, status fields by the attendance ledger.
type Subject struct {
	ID           string
	Name         string
	Department   Department
	GuardianIDs  []string
	CheckedIn    bool
	LastCheckIn  *time.Time
	LastCheckOut *time.Time
	// LastCheckInBy and LastCheckOutBy are empty when the status was not written by the ledger.
	LastCheckInBy  Actor
	LastCheckOutBy Actor
	Allergies      string
	Notes          string
}

func (s Subject) HasGuardian(viewerID string) bool {
	return slices.Contains(s.GuardianIDs, viewerID)
}

// VisibleTo reports whether the viewer may see this subject at all.
func (s Subject) VisibleTo(viewer Viewer) bool {
	switch viewer.Role {
	case RoleStaff:
		return true
	case RoleGuardian:
		return s.HasGuardian(viewer.ID)
	default:
		return false
	}
}

// Roster indexes subjects by id.
type Roster map[string]Subject

func NewRoster(subjects []Subject) Roster {
	roster := make(Roster, len(subjects))
	for _, s := range subjects {
		roster[s.ID] = s
	}
	return roster
}

func (r Roster) Subject(id string) (Subject, bool) {
	s, ok := r[id]
	return s, ok
}
