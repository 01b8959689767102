// Package fault defines the error taxonomy shared by the workflow core.
// Every component returns one of these types (possibly wrapped) so callers
// can decide between surfacing, resubmitting with corrected input, or
// retrying the whole atomic unit.
package fault

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError signals malformed or missing input. Never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Msg)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// Validation builds a ValidationError for the given field.
func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// ConflictError signals a schedule or uniqueness conflict. The caller must
// pick a different time or value; the operation is never retried as-is.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %s", e.Msg) }

// Conflict builds a ConflictError.
func Conflict(msg string) error { return &ConflictError{Msg: msg} }

// InvalidTransitionError signals a status change not present in the entity's
// transition table. It indicates a stale client view.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Entity, e.From, e.To)
}

// InvalidTransition builds an InvalidTransitionError.
func InvalidTransition(entity, from, to string) error {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

// NotFoundError signals the entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: not found", e.Entity)
	}
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error { return &NotFoundError{Entity: entity, ID: id} }

// ForbiddenError signals the actor failed the role or ownership check.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return fmt.Sprintf("forbidden: %s", e.Msg) }

// Forbidden builds a ForbiddenError.
func Forbidden(msg string) error { return &ForbiddenError{Msg: msg} }

// TransientStoreError signals a lock timeout, deadlock or serialization
// failure at the storage layer. The whole atomic unit may be retried a
// bounded number of times; never only the write half.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string { return fmt.Sprintf("transient store: %v", e.Err) }

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientStoreError.
func Transient(err error) error { return &TransientStoreError{Err: err} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var t *ValidationError
	return errors.As(err, &t)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var t *ConflictError
	return errors.As(err, &t)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var t *InvalidTransitionError
	return errors.As(err, &t)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var t *ForbiddenError
	return errors.As(err, &t)
}

// IsTransient reports whether err is a TransientStoreError.
func IsTransient(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

// Postgres SQLSTATE codes that decide the taxonomy at the storage boundary.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
)

// FromPG classifies a storage error. Serialization failures, deadlocks and
// lock timeouts become TransientStoreError; unique and exclusion violations
// become ConflictError. Anything else is returned unchanged.
func FromPG(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return Transient(err)
	case pgUniqueViolation, pgExclusionViolation:
		// Detail is empty for many constraint violations; Message always
		// names the violated constraint.
		msg := pgErr.Detail
		if msg == "" {
			msg = pgErr.Message
		}
		return Conflict(msg)
	default:
		return err
	}
}
