package domain

import "fmt"

// ThreadKey is the comparable form of a ThreadRef, usable as a map key.
type ThreadKey struct {
	Type ThreadType
	ID   string // subject id for direct threads, department for broadcast threads
}

func (k ThreadKey) String() string { return fmt.Sprintf("%s:%s", k.Type, k.ID) }

// ThreadRef addresses a thread. It is either a DirectRef or a BroadcastRef.
type ThreadRef interface {
	Key() ThreadKey
	Department() Department
	threadRef()
}

// DirectRef is the conversation about one subject between its guardians and staff.
type DirectRef struct {
	SubjectID string
	Dept      Department
}

func (r DirectRef) Key() ThreadKey         { return ThreadKey{Type: ThreadDirect, ID: r.SubjectID} }
func (r DirectRef) Department() Department { return r.Dept }
func (DirectRef) threadRef()               {}

// BroadcastRef is the staff-authored announcement channel of a department.
type BroadcastRef struct {
	Dept Department
}

func (r BroadcastRef) Key() ThreadKey {
	return ThreadKey{Type: ThreadBroadcast, ID: string(r.Dept)}
}
func (r BroadcastRef) Department() Department { return r.Dept }
func (BroadcastRef) threadRef()               {}

// Thread is a derived view over the messages sharing a ThreadRef.
// It has no identity of its own and must not outlive the snapshot it came from.
type Thread struct {
	Ref         ThreadRef
	DisplayName string
	Messages    []Message
	LastMessage *Message
	UnreadCount int
}

func (t Thread) Key() ThreadKey { return t.Ref.Key() }

func (t Thread) Type() ThreadType { return t.Ref.Key().Type }

// Unread returns the messages the viewer has not read yet, in thread order.
func (t Thread) Unread(viewerID string) []Message {
	var unread []Message
	for _, m := range t.Messages {
		if !m.ReadByViewer(viewerID) {
			unread = append(unread, m)
		}
	}
	return unread
}
