package repositories

import (
	"fmt"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/errors"
	"time"
)

// Field names of the children collection.
const (
	FieldName              = "name"
	FieldDepartment        = "department"
	FieldParentIDs         = "parentIds"
	FieldCheckedIn         = "checkedIn"
	FieldLastCheckIn       = "lastCheckIn"
	FieldLastCheckOut      = "lastCheckOut"
	FieldLastCheckInBy     = "lastCheckInBy"
	FieldLastCheckInLabel  = "lastCheckInByLabel"
	FieldLastCheckOutBy    = "lastCheckOutBy"
	FieldLastCheckOutLabel = "lastCheckOutByLabel"
	FieldAllergies         = "allergies"
	FieldNotes             = "notes"
)

// GuardianFilter restricts the roster to the subjects of one guardian.
func GuardianFilter(guardianID string) collection.Filter {
	return collection.Where(FieldParentIDs, collection.ArrayContains, guardianID)
}

func DecodeSubject(r collection.Record) (domain.Subject, error) {
	name := r.Fields.String(FieldName)
	if name == "" {
		return domain.Subject{}, fmt.Errorf("%w: subject %s has no name", errors.ErrInvalidRecord, r.ID)
	}
	return domain.Subject{
		ID:           r.ID,
		Name:         name,
		Department:   domain.Department(r.Fields.String(FieldDepartment)),
		GuardianIDs:  r.Fields.Strings(FieldParentIDs),
		CheckedIn:    r.Fields.Bool(FieldCheckedIn),
		LastCheckIn:  r.Fields.TimePtr(FieldLastCheckIn),
		LastCheckOut: r.Fields.TimePtr(FieldLastCheckOut),
		LastCheckInBy: domain.Actor{
			ID:    r.Fields.String(FieldLastCheckInBy),
			Label: r.Fields.String(FieldLastCheckInLabel),
		},
		LastCheckOutBy: domain.Actor{
			ID:    r.Fields.String(FieldLastCheckOutBy),
			Label: r.Fields.String(FieldLastCheckOutLabel),
		},
		Allergies: r.Fields.String(FieldAllergies),
		Notes:     r.Fields.String(FieldNotes),
	}, nil
}

// DecodeSubjects skips malformed records and reports them as a joined error.
func DecodeSubjects(records []collection.Record) ([]domain.Subject, error) {
	subjects := make([]domain.Subject, 0, len(records))
	var errs []error
	for _, r := range records {
		s, err := DecodeSubject(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		subjects = append(subjects, s)
	}
	return subjects, errors.Join(errs...)
}

// EncodeSubject builds the fields of a new subject record.
func EncodeSubject(s domain.Subject) collection.Fields {
	fields := collection.Fields{
		FieldName:       s.Name,
		FieldDepartment: string(s.Department),
		FieldParentIDs:  append([]string{}, s.GuardianIDs...),
		FieldCheckedIn:  s.CheckedIn,
		FieldAllergies:  s.Allergies,
		FieldNotes:      s.Notes,
	}
	if s.LastCheckIn != nil {
		fields[FieldLastCheckIn] = *s.LastCheckIn
	}
	if s.LastCheckOut != nil {
		fields[FieldLastCheckOut] = *s.LastCheckOut
	}
	if s.LastCheckInBy.ID != "" {
		fields[FieldLastCheckInBy] = s.LastCheckInBy.ID
		fields[FieldLastCheckInLabel] = s.LastCheckInBy.Label
	}
	if s.LastCheckOutBy.ID != "" {
		fields[FieldLastCheckOutBy] = s.LastCheckOutBy.ID
		fields[FieldLastCheckOutLabel] = s.LastCheckOutBy.Label
	}
	return fields
}

// StatusUpdate is the partial update written by an attendance transition.
// The actor is stored next to the timestamp so a lost audit record can be rebuilt.
func StatusUpdate(action domain.Action, at time.Time, by domain.Actor) collection.Fields {
	field, byField, labelField := FieldLastCheckOut, FieldLastCheckOutBy, FieldLastCheckOutLabel
	if action == domain.CheckIn {
		field, byField, labelField = FieldLastCheckIn, FieldLastCheckInBy, FieldLastCheckInLabel
	}
	return collection.Fields{
		FieldCheckedIn: action.CheckedIn(),
		field:          at,
		byField:        by.ID,
		labelField:     by.Label,
	}
}
