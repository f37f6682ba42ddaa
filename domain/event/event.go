package event

import (
	"krysselista/domain"
	"time"
)

// DomainEvent is pushed to the sinks of a viewer's session.
type DomainEvent interface {
	ViewerID() string
}

// ThreadsDerived is emitted every time a session recomputes its threads from a new snapshot.
type ThreadsDerived struct {
	Viewer      string
	Threads     []domain.Thread
	UnreadTotal int
	At          time.Time
}

func (e ThreadsDerived) ViewerID() string { return e.Viewer }

// ReadMarked reports the outcome of one read-marking pass.
type ReadMarked struct {
	Viewer  string
	Thread  domain.ThreadKey
	Written int
	Skipped int
	Failed  int
	At      time.Time
}

func (e ReadMarked) ViewerID() string { return e.Viewer }
