package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation error")
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor is not an accepted participant
	// of the session or lacks the capability for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrMirrorReadOnly is returned when a user tries to edit or delete a
	// personal expense generated from a shared session.
	ErrMirrorReadOnly = errors.New("personal expense is mirrored from a shared session")

	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyDescription = errors.New("empty description")
)

// ValidationError reports a broken shape or invariant. It is always
// recoverable by the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent session, allocation, expense or user.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// SyncFailure records that one participant's mirror could not be written.
// It never aborts the batch that produced it.
type SyncFailure struct {
	AllocationID string
	UserID       string
	Err          error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("sync allocation %s (user %s): %v", e.AllocationID, e.UserID, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }

// StoreTransactionError is returned when an atomic write could not commit,
// after the transaction wrapper already retried once.
type StoreTransactionError struct {
	Op  string
	Err error
}

func (e *StoreTransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *StoreTransactionError) Unwrap() error { return e.Err }

// HTTPStatus maps an engine error to the status code the HTTP layer reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrEmptyName), errors.Is(err, ErrEmptyDescription):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrMirrorReadOnly):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
