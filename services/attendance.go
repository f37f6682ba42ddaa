package services

import (
	"cmp"
	"context"
	"krysselista/collection"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/observability"
	"krysselista/repositories"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit = 2
	MaxHistoryLimit     = 100
)

// AttendanceLedger checks subjects in and out. Every transition is two writes:
// the status on the subject with its actor, then one audit record carrying the
// same timestamp and actor. Replaying a transition whose status write succeeded
// only appends the missing audit record, never a second one.
type AttendanceLedger struct {
	client     contract.ICollectionClient
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	now        func() time.Time
}

func NewAttendanceLedger(client contract.ICollectionClient, log *slog.Logger, monitoring *observability.MonitoringManager, now func() time.Time) *AttendanceLedger {
	if now == nil {
		now = time.Now
	}
	return &AttendanceLedger{client: client, log: log, monitoring: monitoring, now: now}
}

func (l *AttendanceLedger) Transition(ctx context.Context, cmd domain.TransitionCommand) (domain.TransitionResult, error) {
	if err := validateTransition(cmd); err != nil {
		return domain.TransitionResult{}, err
	}
	subject, err := l.loadSubject(ctx, cmd.Viewer, cmd.SubjectID)
	if err != nil {
		return domain.TransitionResult{}, err
	}

	if subject.CheckedIn == cmd.Action.CheckedIn() {
		return l.replay(ctx, cmd, subject)
	}

	ts := l.now().UTC()
	actor := domain.Actor{ID: cmd.Viewer.ID, Label: cmd.Viewer.Label()}
	if err := l.client.UpdateFields(ctx, collection.Subjects, subject.ID, repositories.StatusUpdate(cmd.Action, ts, actor)); err != nil {
		return domain.TransitionResult{}, l.failed(cmd, "update status", err)
	}
	subject = applied(subject, cmd.Action, ts, actor)

	event := domain.AttendanceEvent{
		SubjectID:        subject.ID,
		Action:           cmd.Action,
		PerformedBy:      actor.ID,
		PerformedByLabel: actor.Label,
		Timestamp:        ts,
	}
	if event.ID, err = l.client.Append(ctx, collection.AttendanceLog, repositories.EncodeAttendanceEvent(event)); err != nil {
		// the status is already written: replaying the transition appends the record
		return domain.TransitionResult{Subject: subject, Applied: true}, l.failed(cmd, "append audit record", err)
	}

	l.monitoring.Transition(string(cmd.Action), observability.OutcomeApplied)
	l.log.Info("Attendance transition", "subject", subject.ID, "action", cmd.Action, "by", cmd.Viewer.ID)
	return domain.TransitionResult{Subject: subject, Event: event, Applied: true}, nil
}

// replay handles a subject already in the requested state.
// Only a status written by the ledger itself, which carries its actor, is repaired.
func (l *AttendanceLedger) replay(ctx context.Context, cmd domain.TransitionCommand, subject domain.Subject) (domain.TransitionResult, error) {
	last, actor := subject.LastCheckOut, subject.LastCheckOutBy
	if cmd.Action == domain.CheckIn {
		last, actor = subject.LastCheckIn, subject.LastCheckInBy
	}
	if last == nil {
		l.monitoring.Transition(string(cmd.Action), observability.OutcomeNoop)
		return domain.TransitionResult{Subject: subject}, nil
	}

	records, err := repositories.Fetch(ctx, l.client, collection.AttendanceLog, repositories.TransitionLogFilter(subject.ID, cmd.Action, *last))
	if err != nil {
		return domain.TransitionResult{}, l.failed(cmd, "look up audit record", err)
	}
	if len(records) > 0 {
		event, err := repositories.DecodeAttendanceEvent(records[0])
		if err != nil {
			l.log.Warn("Unreadable audit record", "id", records[0].ID, "error", err)
		}
		l.monitoring.Transition(string(cmd.Action), observability.OutcomeNoop)
		return domain.TransitionResult{Subject: subject, Event: event}, nil
	}

	if actor.ID == "" {
		l.monitoring.Transition(string(cmd.Action), observability.OutcomeNoop)
		l.log.Debug("Status without actor, nothing to repair", "subject", subject.ID, "action", cmd.Action)
		return domain.TransitionResult{Subject: subject}, nil
	}

	event := domain.AttendanceEvent{
		SubjectID:        subject.ID,
		Action:           cmd.Action,
		PerformedBy:      actor.ID,
		PerformedByLabel: actor.Label,
		Timestamp:        *last,
	}
	if event.ID, err = l.client.Append(ctx, collection.AttendanceLog, repositories.EncodeAttendanceEvent(event)); err != nil {
		return domain.TransitionResult{Subject: subject}, l.failed(cmd, "repair audit record", err)
	}
	l.monitoring.Transition(string(cmd.Action), observability.OutcomeRepaired)
	l.log.Warn("Missing audit record appended", "subject", subject.ID, "action", cmd.Action, "at", *last)
	return domain.TransitionResult{Subject: subject, Event: event, Repaired: true}, nil
}

// History returns the subject's audit trail, newest first.
// limit defaults to DefaultHistoryLimit and is capped at MaxHistoryLimit.
func (l *AttendanceLedger) History(ctx context.Context, viewer domain.Viewer, subjectID string, limit int) ([]domain.AttendanceEvent, error) {
	if subjectID == "" {
		return nil, errors.ErrUnknownSubject
	}
	if _, err := l.loadSubject(ctx, viewer, subjectID); err != nil {
		return nil, err
	}
	records, err := repositories.Fetch(ctx, l.client, collection.AttendanceLog, repositories.SubjectLogFilter(subjectID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(records, func(a, b collection.Record) int {
		return cmp.Compare(b.Seq, a.Seq)
	})

	events := make([]domain.AttendanceEvent, 0, len(records))
	for _, r := range records {
		event, err := repositories.DecodeAttendanceEvent(r)
		if err != nil {
			l.log.Warn("Skipping unreadable audit record", "id", r.ID, "error", err)
			continue
		}
		events = append(events, event)
	}
	slices.SortStableFunc(events, func(a, b domain.AttendanceEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return lo.Slice(events, 0, limit), nil
}

// loadSubject reads the subject as the viewer is allowed to see it.
// Guardians only read their own children, so any other id is an access error.
func (l *AttendanceLedger) loadSubject(ctx context.Context, viewer domain.Viewer, subjectID string) (domain.Subject, error) {
	if !viewer.Role.Valid() {
		return domain.Subject{}, errors.ErrUnknownRole
	}
	var filter collection.Filter
	if !viewer.IsStaff() {
		filter = repositories.GuardianFilter(viewer.ID)
	}
	records, err := repositories.Fetch(ctx, l.client, collection.Subjects, filter)
	if err != nil {
		return domain.Subject{}, err
	}
	record, ok := lo.Find(records, func(r collection.Record) bool { return r.ID == subjectID })
	if !ok {
		if viewer.IsStaff() {
			return domain.Subject{}, errors.ErrUnknownSubject
		}
		return domain.Subject{}, errors.ErrNotGuardian
	}
	subject, err := repositories.DecodeSubject(record)
	if err != nil {
		return domain.Subject{}, err
	}
	if err := domain.CanActOnSubject(viewer, subject); err != nil {
		return domain.Subject{}, err
	}
	return subject, nil
}

func (l *AttendanceLedger) failed(cmd domain.TransitionCommand, step string, err error) error {
	if !errors.Is(err, errors.ErrPersistence) {
		err = errors.NewPersistenceError(step, string(collection.Subjects), cmd.SubjectID, err)
	}
	l.monitoring.Transition(string(cmd.Action), observability.OutcomeFailed)
	l.log.Error("Attendance transition failed", "subject", cmd.SubjectID, "action", cmd.Action, "step", step, "error", err)
	return err
}

func applied(s domain.Subject, action domain.Action, ts time.Time, by domain.Actor) domain.Subject {
	s.CheckedIn = action.CheckedIn()
	if action == domain.CheckIn {
		s.LastCheckIn, s.LastCheckInBy = &ts, by
	} else {
		s.LastCheckOut, s.LastCheckOutBy = &ts, by
	}
	return s
}
