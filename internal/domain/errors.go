package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent ledger-level failures and are shared by the stores,
// the ledger service and the transports that report them.
// -----------------------------------------------------------------------------

// Ledger errors
var (
	// ErrNotConfigured is returned by writes when no persistence is available.
	ErrNotConfigured = errors.New("progression store not configured")

	// ErrConflictExhausted is returned when conflict retries exceed the bound.
	ErrConflictExhausted = errors.New("conflict retries exhausted")

	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")
)

// Store errors
var (
	// ErrDuplicate signals a uniqueness violation on insert: another writer
	// created the row first.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStaleWrite signals that an update-by-id lost to a concurrent writer.
	ErrStaleWrite = errors.New("stale write")
)

// Input errors
var (
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrUnknownDifficulty  = errors.New("unknown difficulty")
	ErrUnknownSessionType = errors.New("unknown session type")
	ErrNegativeXP         = errors.New("xp delta must not be negative")
)

// IsConflict reports whether err is a write conflict that should be resolved
// by re-reading the record and recomputing the write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrStaleWrite)
}

// ValidationError describes rejected input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// OpError records which ledger operation failed and for whom.
type OpError struct {
	Op       string
	Identity Identity
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Identity, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
