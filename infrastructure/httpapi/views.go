package httpapi

import (
	"krysselista/domain"
	"krysselista/projection"
	"time"
)

type threadRefBody struct {
	Type       string `json:"type" binding:"required,oneof=direct broadcast"`
	SubjectID  string `json:"subject_id"`
	Department string `json:"department"`
}

func (b threadRefBody) ref() domain.ThreadRef {
	if b.Type == string(domain.ThreadBroadcast) {
		return domain.BroadcastRef{Dept: domain.Department(b.Department)}
	}
	return domain.DirectRef{SubjectID: b.SubjectID, Dept: domain.Department(b.Department)}
}

type messageView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
	Read       bool      `json:"read"`
}

type threadView struct {
	Key         string        `json:"key"`
	Type        string        `json:"type"`
	SubjectID   string        `json:"subject_id,omitempty"`
	Department  string        `json:"department"`
	DisplayName string        `json:"display_name"`
	UnreadCount int           `json:"unread_count"`
	LastMessage *messageView  `json:"last_message,omitempty"`
	Messages    []messageView `json:"messages,omitempty"`
}

type subjectView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Department   string     `json:"department"`
	CheckedIn    bool       `json:"checked_in"`
	LastCheckIn  *time.Time `json:"last_check_in,omitempty"`
	LastCheckOut *time.Time `json:"last_check_out,omitempty"`
	Allergies    string     `json:"allergies,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

type departmentView struct {
	Department string        `json:"department"`
	Subjects   []subjectView `json:"subjects"`
}

type attendanceEventView struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Label       string    `json:"performed_by_name"`
	Timestamp   time.Time `json:"timestamp"`
}

func toMessageView(m domain.Message, viewerID string) messageView {
	return messageView{
		ID:         m.ID,
		Kind:       string(m.Kind),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: string(m.SenderRole),
		Text:       m.Body,
		SentAt:     m.SentAt,
		Read:       m.ReadByViewer(viewerID),
	}
}

// toThreadView leaves messages out unless withMessages is set; lists only need the last one.
func toThreadView(t domain.Thread, viewerID string, withMessages bool) threadView {
	view := threadView{
		Key:         t.Key().String(),
		Type:        string(t.Type()),
		Department:  string(t.Ref.Department()),
		DisplayName: t.DisplayName,
		UnreadCount: t.UnreadCount,
	}
	if direct, ok := t.Ref.(domain.DirectRef); ok {
		view.SubjectID = direct.SubjectID
	}
	if t.LastMessage != nil {
		last := toMessageView(*t.LastMessage, viewerID)
		view.LastMessage = &last
	}
	if withMessages {
		view.Messages = make([]messageView, 0, len(t.Messages))
		for _, m := range t.Messages {
			view.Messages = append(view.Messages, toMessageView(m, viewerID))
		}
	}
	return view
}

func toThreadViews(threads []domain.Thread, viewerID string) []threadView {
	views := make([]threadView, 0, len(threads))
	for _, t := range threads {
		views = append(views, toThreadView(t, viewerID, false))
	}
	return views
}

func toSubjectView(s domain.Subject) subjectView {
	return subjectView{
		ID:           s.ID,
		Name:         s.Name,
		Department:   string(s.Department),
		CheckedIn:    s.CheckedIn,
		LastCheckIn:  s.LastCheckIn,
		LastCheckOut: s.LastCheckOut,
		Allergies:    s.Allergies,
		Notes:        s.Notes,
	}
}

func toDepartmentViews(groups []projection.DepartmentGroup) []departmentView {
	views := make([]departmentView, 0, len(groups))
	for _, g := range groups {
		view := departmentView{Department: string(g.Department), Subjects: make([]subjectView, 0, len(g.Subjects))}
		for _, s := range g.Subjects {
			view.Subjects = append(view.Subjects, toSubjectView(s))
		}
		views = append(views, view)
	}
	return views
}

func toAttendanceEventView(e domain.AttendanceEvent) attendanceEventView {
	return attendanceEventView{
		ID:          e.ID,
		SubjectID:   e.SubjectID,
		Action:      string(e.Action),
		PerformedBy: e.PerformedBy,
		Label:       e.PerformedByLabel,
		Timestamp:   e.Timestamp,
	}
}
