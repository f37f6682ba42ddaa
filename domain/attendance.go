package domain

import "time"

type Action string

const (
	CheckIn  Action = "check-in"
	CheckOut Action = "check-out"
)

func (a Action) Valid() bool { return a == CheckIn || a == CheckOut }

// CheckedIn is the status the subject has after the action is applied.
func (a Action) CheckedIn() bool { return a == CheckIn }

// Actor is who performed a transition, as stored with the status.
type Actor struct {
	ID    string
	Label string
}

// AttendanceEvent is one append-only audit record of a presence transition.
type AttendanceEvent struct {
	ID               string
	SubjectID        string
	Action           Action
	PerformedBy      string
	PerformedByLabel string
	Timestamp        time.Time
}

// TransitionResult describes what Transition did.
type TransitionResult struct {
	Subject  Subject
	Event    AttendanceEvent
	Applied  bool // status was written
	Repaired bool // a missing audit record from an earlier attempt was appended
}

// AttendanceStats counts subjects by presence.
type AttendanceStats struct {
	CheckedIn  int
	CheckedOut int
}
