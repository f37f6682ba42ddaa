package repositories

import (
	"fmt"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/errors"
	"time"
)

// Field names of the logs collection.
const (
	FieldAction          = "action"
	FieldPerformedBy     = "performedBy"
	FieldPerformedByName = "performedByName"
	FieldTimestamp       = "timestamp"
)

func EncodeAttendanceEvent(e domain.AttendanceEvent) collection.Fields {
	return collection.Fields{
		FieldChildID:         e.SubjectID,
		FieldAction:          string(e.Action),
		FieldPerformedBy:     e.PerformedBy,
		FieldPerformedByName: e.PerformedByLabel,
		FieldTimestamp:       e.Timestamp,
	}
}

func DecodeAttendanceEvent(r collection.Record) (domain.AttendanceEvent, error) {
	action := domain.Action(r.Fields.String(FieldAction))
	if !action.Valid() {
		return domain.AttendanceEvent{}, fmt.Errorf("%w: log %s has unknown action %q", errors.ErrInvalidRecord, r.ID, action)
	}
	ts, ok := r.Fields.Time(FieldTimestamp)
	if !ok {
		return domain.AttendanceEvent{}, fmt.Errorf("%w: log %s has no timestamp", errors.ErrInvalidRecord, r.ID)
	}
	return domain.AttendanceEvent{
		ID:               r.ID,
		SubjectID:        r.Fields.String(FieldChildID),
		Action:           action,
		PerformedBy:      r.Fields.String(FieldPerformedBy),
		PerformedByLabel: r.Fields.String(FieldPerformedByName),
		Timestamp:        ts,
	}, nil
}

// SubjectLogFilter selects the audit trail of one subject.
func SubjectLogFilter(subjectID string) collection.Filter {
	return collection.Where(FieldChildID, collection.Equal, subjectID)
}

// TransitionLogFilter selects the audit record written for one transition.
func TransitionLogFilter(subjectID string, action domain.Action, at time.Time) collection.Filter {
	return SubjectLogFilter(subjectID).
		And(FieldAction, collection.Equal, string(action)).
		And(FieldTimestamp, collection.Equal, at)
}
