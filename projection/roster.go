package projection

import (
	"krysselista/domain"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// DepartmentGroup is one section of the "new conversation" picker.
type DepartmentGroup struct {
	Department domain.Department
	Subjects   []domain.Subject
}

// StartableSubjects lists, for staff, the subjects a direct conversation can be opened
// about, grouped by department and sorted by name. Guardians get nothing: their
// threads appear once they or staff write.
func StartableSubjects(viewer domain.Viewer, subjects []domain.Subject, query string) []DepartmentGroup {
	if !viewer.IsStaff() {
		return nil
	}
	query = strings.ToLower(strings.TrimSpace(query))
	matching := lo.Filter(subjects, func(s domain.Subject, _ int) bool {
		return query == "" || strings.Contains(strings.ToLower(s.Name), query)
	})
	byDept := lo.GroupBy(matching, func(s domain.Subject) domain.Department { return s.Department })

	var groups []DepartmentGroup
	for _, dept := range domain.Departments() {
		members := byDept[dept]
		if len(members) == 0 {
			continue
		}
		slices.SortFunc(members, func(a, b domain.Subject) int {
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		groups = append(groups, DepartmentGroup{Department: dept, Subjects: members})
	}
	return groups
}

// AttendanceStats counts the visible subjects by presence.
func AttendanceStats(viewer domain.Viewer, subjects []domain.Subject) domain.AttendanceStats {
	visible := visibleSubjects(viewer, subjects)
	in := lo.CountBy(visible, func(s domain.Subject) bool { return s.CheckedIn })
	return domain.AttendanceStats{CheckedIn: in, CheckedOut: len(visible) - in}
}
