package domain

import (
	"errors"
	"fmt"
)

// ValidationError indicates a malformed raw record or request. Batch
// ingestion rejects the single record and continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError indicates a referenced entity does not exist. The single
// operation is aborted; there is nothing to retry.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFoundError creates a not-found error for an entity
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// TransientStoreError wraps a persistence failure that is expected to
// succeed on retry. The job orchestrator retries these per backoff policy.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// NewTransientStoreError wraps err as retryable
func NewTransientStoreError(op string, err error) *TransientStoreError {
	return &TransientStoreError{Op: op, Err: err}
}

// InvariantViolation indicates corrupted or partially written state, such
// as a ledger repost failing mid-write. These are logged loudly and never
// silently swallowed.
type InvariantViolation struct {
	Invariant string
	Err       error
}

func (e *InvariantViolation) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s: %v", e.Invariant, e.Err)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should be retried by the job layer.
// Validation errors, missing entities and invariant violations are
// permanent; transient store errors are not.
func IsRetryable(err error) bool {
	var verr *ValidationError
	var nferr *NotFoundError
	var iverr *InvariantViolation
	if errors.As(err, &verr) || errors.As(err, &nferr) || errors.As(err, &iverr) {
		return false
	}
	return true
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nferr *NotFoundError
	return errors.As(err, &nferr)
}
