package repositories

import (
	"fmt"
	"krysselista/collection"
	"krysselista/domain"
	"krysselista/errors"
)

// Field names of the messages collection.
const (
	FieldType     = "type"
	FieldChildID  = "childId"
	FieldFromID   = "fromId"
	FieldFromName = "fromName"
	FieldFromRole = "fromRole"
	FieldText     = "message"
	FieldSentAt   = "timestamp"
	FieldReadBy   = "readBy"
)

func DecodeMessage(r collection.Record) (domain.Message, error) {
	kind := domain.MessageKind(r.Fields.String(FieldType))
	switch kind {
	case domain.KindGuardianToStaff, domain.KindStaffToGuardian:
		if r.Fields.String(FieldChildID) == "" {
			return domain.Message{}, fmt.Errorf("%w: direct message %s has no subject", errors.ErrInvalidRecord, r.ID)
		}
	case domain.KindStaffBroadcast:
	default:
		return domain.Message{}, fmt.Errorf("%w: message %s has unknown type %q", errors.ErrInvalidRecord, r.ID, kind)
	}
	sentAt, ok := r.Fields.Time(FieldSentAt)
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message %s has no timestamp", errors.ErrInvalidRecord, r.ID)
	}
	return domain.Message{
		ID:         r.ID,
		Seq:        r.Seq,
		Kind:       kind,
		SubjectID:  r.Fields.String(FieldChildID),
		Department: domain.Department(r.Fields.String(FieldDepartment)),
		SenderID:   r.Fields.String(FieldFromID),
		SenderName: r.Fields.String(FieldFromName),
		SenderRole: domain.Role(r.Fields.String(FieldFromRole)),
		Body:       r.Fields.String(FieldText),
		SentAt:     sentAt,
		ReadBy:     r.Fields.Strings(FieldReadBy),
	}, nil
}

// DecodeMessages skips malformed records and reports them as a joined error.
func DecodeMessages(records []collection.Record) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, len(records))
	var errs []error
	for _, r := range records {
		m, err := DecodeMessage(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, errors.Join(errs...)
}

// EncodeNewMessage builds the fields appended for a new message.
// The sender is its first reader and the timestamp is assigned by the store.
func EncodeNewMessage(viewer domain.Viewer, ref domain.ThreadRef, body string) collection.Fields {
	fields := collection.Fields{
		FieldType:       string(domain.KindFor(viewer.Role, ref.Key().Type)),
		FieldDepartment: string(ref.Department()),
		FieldFromID:     viewer.ID,
		FieldFromName:   viewer.Label(),
		FieldFromRole:   string(viewer.Role),
		FieldText:       body,
		FieldSentAt:     collection.ServerTimestamp,
		FieldReadBy:     collection.ArrayUnion(viewer.ID),
	}
	if direct, ok := ref.(domain.DirectRef); ok {
		fields[FieldChildID] = direct.SubjectID
	}
	return fields
}

// MarkReadUpdate adds the viewer to a message's readers.
func MarkReadUpdate(viewerID string) collection.Fields {
	return collection.Fields{FieldReadBy: collection.ArrayUnion(viewerID)}
}
