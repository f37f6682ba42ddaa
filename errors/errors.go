package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Kinds. Every error returned by the core wraps exactly one of them.
	ErrValidation  = fmt.Errorf("validation error")
	ErrAccess      = fmt.Errorf("access denied")
	ErrPersistence = fmt.Errorf("persistence error")

	ErrEmptyBody         = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrBodyTooLong       = fmt.Errorf("%w: message body is too long", ErrValidation)
	ErrNoThreadSelected  = fmt.Errorf("%w: no thread selected", ErrValidation)
	ErrUnknownSubject    = fmt.Errorf("%w: unknown subject", ErrValidation)
	ErrUnknownDepartment = fmt.Errorf("%w: unknown department", ErrValidation)
	ErrInvalidAction     = fmt.Errorf("%w: invalid attendance action", ErrValidation)
	ErrInvalidRecord     = fmt.Errorf("%w: malformed record", ErrValidation)

	ErrReadOnlyBroadcast = fmt.Errorf("%w: broadcast threads are read-only for guardians", ErrAccess)
	ErrNotGuardian       = fmt.Errorf("%w: viewer is not a guardian of this subject", ErrAccess)
	ErrUnknownRole       = fmt.Errorf("%w: unknown viewer role", ErrAccess)

	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrInvalidToken    = fmt.Errorf("%w: invalid or expired token", ErrUnauthenticated)
	ErrMissingToken    = fmt.Errorf("%w: authorization token is missing", ErrUnauthenticated)

	ErrRecordNotFound     = fmt.Errorf("record not found")
	ErrSubscriptionClosed = fmt.Errorf("subscription closed")
	ErrStoreClosed        = fmt.Errorf("store closed")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrManagerStopped     = fmt.Errorf("session manager stopped")
)

// PersistenceError reports a failed write or read against the remote collection store.
type PersistenceError struct {
	Op         string
	Collection string
	RecordID   string
	Err        error
}

func NewPersistenceError(op, collection, recordID string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Collection: collection, RecordID: recordID, Err: err}
}

func (e *PersistenceError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SendError is returned when a message could not be appended.
// Draft holds the text the viewer typed so it can be offered again.
type SendError struct {
	Draft string
	Err   error
}

func (e *SendError) Error() string { return fmt.Sprintf("send failed: %v", e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

// Is and As are re-exported so callers only import this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
