package domain

import "krysselista/errors"

// CanCompose checks whether the viewer may post into ref.
// Access is derived from the addressing and the roster, never from the message kind.
func CanCompose(viewer Viewer, ref ThreadRef, roster Roster) error {
	if !viewer.Role.Valid() {
		return errors.ErrUnknownRole
	}
	switch r := ref.(type) {
	case BroadcastRef:
		if !r.Dept.Valid() {
			return errors.ErrUnknownDepartment
		}
		if viewer.Role != RoleStaff {
			return errors.ErrReadOnlyBroadcast
		}
		return nil
	case DirectRef:
		subject, ok := roster.Subject(r.SubjectID)
		if !ok && viewer.Role == RoleGuardian {
			// a guardian's roster only holds their own children
			return errors.ErrNotGuardian
		}
		if !ok {
			return errors.ErrUnknownSubject
		}
		if !subject.VisibleTo(viewer) {
			return errors.ErrNotGuardian
		}
		return nil
	default:
		return errors.ErrNoThreadSelected
	}
}

// CanActOnSubject checks attendance access: staff for everyone, guardians for their own children.
func CanActOnSubject(viewer Viewer, subject Subject) error {
	if !viewer.Role.Valid() {
		return errors.ErrUnknownRole
	}
	if !subject.VisibleTo(viewer) {
		return errors.ErrNotGuardian
	}
	return nil
}
