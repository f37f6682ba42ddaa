// Package domain contains core concepts of the daycare system.
// This file defines Message records and their addressing.
// Messages are immutable once appended, except ReadBy which only grows.
package domain

import (
	"slices"
	"time"
)

type ThreadType string

const (
	ThreadDirect    ThreadType = "direct"
	ThreadBroadcast ThreadType = "broadcast"
)

// MessageKind is the display tag written with every message.
// It is never used for access control.
type MessageKind string

const (
	KindGuardianToStaff MessageKind = "parent-to-staff"
	KindStaffToGuardian MessageKind = "staff-to-parent"
	KindStaffBroadcast  MessageKind = "staff-broadcast"
)

func (k MessageKind) ThreadType() ThreadType {
	if k == KindStaffBroadcast {
		return ThreadBroadcast
	}
	return ThreadDirect
}

// KindFor returns the tag a message sent by role into a thread of type t carries.
func KindFor(role Role, t ThreadType) MessageKind {
	switch {
	case t == ThreadBroadcast:
		return KindStaffBroadcast
	case role == RoleGuardian:
		return KindGuardianToStaff
	default:
		return KindStaffToGuardian
	}
}

type Message struct {
	ID         string
	Seq        uint64 // arrival order assigned by the store
	Kind       MessageKind
	SubjectID  string
	Department Department
	SenderID   string
	SenderName string
	SenderRole Role
	Body       string
	SentAt     time.Time
	ReadBy     []string
}

func (m Message) ThreadType() ThreadType { return m.Kind.ThreadType() }

// Ref is the single thread address of the message.
func (m Message) Ref() ThreadRef {
	if m.ThreadType() == ThreadBroadcast {
		return BroadcastRef{Dept: m.Department}
	}
	return DirectRef{SubjectID: m.SubjectID, Dept: m.Department}
}

func (m Message) ReadByViewer(viewerID string) bool {
	return slices.Contains(m.ReadBy, viewerID)
}

// Before orders messages chronologically; Seq then ID break equal timestamps.
func (m Message) Before(other Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	if m.Seq != other.Seq {
		return m.Seq < other.Seq
	}
	return m.ID < other.ID
}

// CompareMessages is the slices.SortFunc form of Before.
func CompareMessages(a, b Message) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}
