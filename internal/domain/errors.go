package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Code classifies an engine error for callers and the assignment log.
type Code string

const (
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInterpreterConflict Code = "INTERPRETER_CONFLICT"
	CodeInvalidInterpreter  Code = "INVALID_INTERPRETER"
	CodeFairnessGuardrail   Code = "FAIRNESS_GUARDRAIL"
	CodeDRBlocked           Code = "DR_BLOCKED"
	CodeLockTimeout         Code = "LOCK_TIMEOUT"
	CodePolicyViolation     Code = "POLICY_VIOLATION"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is a structured domain error carrying a taxonomy code and a
// correlation id for log lookup.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string

	// ConflictingBookingID is set for INTERPRETER_CONFLICT.
	ConflictingBookingID int64

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a domain error with a fresh correlation id.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, CorrelationID: uuid.NewString()}
}

// NewErrorf builds a domain error with a formatted message.
func NewErrorf(code Code, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError attaches a cause to a new domain error.
func WrapError(code Code, msg string, cause error) *Error {
	e := NewError(code, msg)
	e.cause = cause
	return e
}

// InterpreterConflictError reports a commit-time overlap with an existing booking.
func InterpreterConflictError(empCode string, conflictingBookingID int64) *Error {
	e := NewErrorf(CodeInterpreterConflict, "interpreter %s already booked", empCode)
	e.ConflictingBookingID = conflictingBookingID
	return e
}

// CodeOf extracts the taxonomy code from err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsTransient reports whether err should be retried by the scheduler
// rather than surfaced as a hard failure.
func IsTransient(err error) bool {
	return CodeOf(err) == CodeLockTimeout
}
