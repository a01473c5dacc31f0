// Package domainerrors carries typed errors across the service boundary.
//
// Services return *Error values with a Code; transports translate codes into
// status codes. Store-level facts (not found, conflict) travel as sentinel
// errors from pkg/platform/sentinel and are translated by services.
package domainerrors

import (
	"errors"
	"maps"
)

// Code classifies an error for transport mapping.
type Code string

const (
	CodeValidation           Code = "validation_error"
	CodeBadRequest           Code = "bad_request"
	CodeNotFound             Code = "not_found"
	CodeConflict             Code = "conflict"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeInvariantViolation   Code = "invariant_violation"
	CodeUnauthorized         Code = "unauthorized"
	CodeRateLimited          Code = "rate_limited"
	CodePayloadTooLarge      Code = "payload_too_large"
	CodeUnsupportedMediaType Code = "unsupported_media_type"
	CodeTimeout              Code = "timeout"
	CodeInternal             Code = "internal_error"
)

// Error is a domain error with a code, a client-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	// Fields holds per-field messages for validation errors, keyed by wire field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so errors.Is(err, New(code, "...")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation builds a validation error carrying per-field messages.
func Validation(msg string, fields map[string]string) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: maps.Clone(fields)}
}

// HasCode reports whether err (or anything it wraps) is a domain error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// As extracts the outermost domain error.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// FieldErrors returns the per-field messages of a validation error, or nil.
func FieldErrors(err error) map[string]string {
	if de, ok := As(err); ok {
		return de.Fields
	}
	return nil
}
