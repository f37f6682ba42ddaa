// Package projection builds per-viewer views from collection snapshots.
// Every function here is pure: same inputs, same output, no I/O.
// Results are recomputed from scratch for each snapshot and never cached.
package projection

import (
	"cmp"
	"krysselista/domain"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// DeriveThreads turns the roster and the flat message stream into the viewer's threads.
// Threads with messages come first, most recent activity first; empty broadcast
// threads, which only staff get, follow in department order.
func DeriveThreads(viewer domain.Viewer, subjects []domain.Subject, messages []domain.Message) []domain.Thread {
	if !viewer.Role.Valid() {
		return nil
	}
	visible := visibleSubjects(viewer, subjects)
	messages = lo.UniqBy(messages, func(m domain.Message) string { return m.ID })
	direct := lo.GroupBy(lo.Filter(messages, func(m domain.Message, _ int) bool {
		return m.ThreadType() == domain.ThreadDirect && canSee(viewer, m)
	}), func(m domain.Message) string { return m.SubjectID })
	broadcast := lo.GroupBy(lo.Filter(messages, func(m domain.Message, _ int) bool {
		return m.ThreadType() == domain.ThreadBroadcast
	}), func(m domain.Message) domain.Department { return m.Department })

	var threads []domain.Thread
	for _, s := range visible {
		if len(direct[s.ID]) == 0 {
			continue
		}
		threads = append(threads, build(viewer, domain.DirectRef{SubjectID: s.ID, Dept: s.Department}, s.Name, direct[s.ID]))
	}
	for _, dept := range broadcastDepartments(viewer, visible) {
		if !viewer.IsStaff() && len(broadcast[dept]) == 0 {
			continue
		}
		threads = append(threads, build(viewer, domain.BroadcastRef{Dept: dept}, string(dept), broadcast[dept]))
	}
	slices.SortStableFunc(threads, compareThreads)
	return threads
}

// ThreadMessages builds the thread addressed by ref even when it has no message yet,
// so staff can open a conversation about any subject. ok is false when the viewer
// cannot see that thread.
func ThreadMessages(viewer domain.Viewer, ref domain.ThreadRef, subjects []domain.Subject, messages []domain.Message) (domain.Thread, bool) {
	if !viewer.Role.Valid() {
		return domain.Thread{}, false
	}
	visible := visibleSubjects(viewer, subjects)
	messages = lo.UniqBy(messages, func(m domain.Message) string { return m.ID })

	switch r := ref.(type) {
	case domain.DirectRef:
		subject, ok := lo.Find(visible, func(s domain.Subject) bool { return s.ID == r.SubjectID })
		if !ok {
			return domain.Thread{}, false
		}
		own := lo.Filter(messages, func(m domain.Message, _ int) bool {
			return m.ThreadType() == domain.ThreadDirect && m.SubjectID == subject.ID && canSee(viewer, m)
		})
		return build(viewer, domain.DirectRef{SubjectID: subject.ID, Dept: subject.Department}, subject.Name, own), true
	case domain.BroadcastRef:
		if !slices.Contains(broadcastDepartments(viewer, visible), r.Dept) {
			return domain.Thread{}, false
		}
		own := lo.Filter(messages, func(m domain.Message, _ int) bool {
			return m.ThreadType() == domain.ThreadBroadcast && m.Department == r.Dept
		})
		return build(viewer, r, string(r.Dept), own), true
	}
	return domain.Thread{}, false
}

// FilterThreads keeps threads whose display name or department contains query, ignoring case.
func FilterThreads(threads []domain.Thread, query string) []domain.Thread {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return threads
	}
	return lo.Filter(threads, func(t domain.Thread, _ int) bool {
		return strings.Contains(strings.ToLower(t.DisplayName), query) ||
			strings.Contains(strings.ToLower(string(t.Ref.Department())), query)
	})
}

func UnreadTotal(threads []domain.Thread) int {
	return lo.SumBy(threads, func(t domain.Thread) int { return t.UnreadCount })
}

// canSee applies the direct message rule: staff see everything, a guardian sees
// what they sent plus staff replies, never another guardian's messages.
func canSee(viewer domain.Viewer, m domain.Message) bool {
	if viewer.IsStaff() {
		return true
	}
	return m.SenderID == viewer.ID || m.SenderRole == domain.RoleStaff
}

func visibleSubjects(viewer domain.Viewer, subjects []domain.Subject) []domain.Subject {
	return lo.UniqBy(lo.Filter(subjects, func(s domain.Subject, _ int) bool {
		return s.VisibleTo(viewer)
	}), func(s domain.Subject) string { return s.ID })
}

// broadcastDepartments lists the departments whose broadcast thread the viewer may read.
func broadcastDepartments(viewer domain.Viewer, visible []domain.Subject) []domain.Department {
	if viewer.IsStaff() {
		return domain.Departments()
	}
	return lo.Filter(domain.Departments(), func(d domain.Department, _ int) bool {
		return lo.ContainsBy(visible, func(s domain.Subject) bool { return s.Department == d })
	})
}

func build(viewer domain.Viewer, ref domain.ThreadRef, name string, messages []domain.Message) domain.Thread {
	sorted := slices.Clone(messages)
	slices.SortFunc(sorted, domain.CompareMessages)
	thread := domain.Thread{
		Ref:         ref,
		DisplayName: name,
		Messages:    sorted,
		UnreadCount: lo.CountBy(sorted, func(m domain.Message) bool { return !m.ReadByViewer(viewer.ID) }),
	}
	if len(sorted) > 0 {
		last := sorted[len(sorted)-1]
		thread.LastMessage = &last
	}
	return thread
}

func compareThreads(a, b domain.Thread) int {
	switch {
	case a.LastMessage != nil && b.LastMessage == nil:
		return -1
	case a.LastMessage == nil && b.LastMessage != nil:
		return 1
	case a.LastMessage != nil:
		if c := domain.CompareMessages(*b.LastMessage, *a.LastMessage); c != 0 {
			return c
		}
	default:
		if c := cmp.Compare(departmentRank(a.Ref.Department()), departmentRank(b.Ref.Department())); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.Key().String(), b.Key().String())
}

func departmentRank(d domain.Department) int {
	if i := slices.Index(domain.Departments(), d); i >= 0 {
		return i
	}
	return len(domain.Departments())
}
