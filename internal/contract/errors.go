package contract

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes resolution errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown base profile or version.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates a malformed document, an extends-target
	// mismatch or an unknown field.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeMergeConflict indicates a patch tried to change a protected field.
	ErrCodeMergeConflict ErrorCode = "MERGE_CONFLICT"

	// ErrCodeInvariantViolation indicates a lifecycle event was refused by the
	// invariant guard.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
)

// Error is the typed error for expected resolution failures.
//
// Subject names the offending profile or patch so user-facing output can
// identify it without exposing merge internals.
type Error struct {
	Code    ErrorCode
	Message string
	Subject string // profile ref or patch id
	Path    string // field path, when the error concerns one field
	Err     error  // underlying cause, optional
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Subject != "" && e.Path != "":
		msg = fmt.Sprintf("%s (subject=%s, path=%s)", msg, e.Subject, e.Path)
	case e.Subject != "":
		msg = fmt.Sprintf("%s (subject=%s)", msg, e.Subject)
	case e.Path != "":
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFound creates a NOT_FOUND error for subject.
func NewNotFound(subject, message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Subject: subject}
}

// NewValidation creates a VALIDATION error.
func NewValidation(subject, path, message string) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Subject: subject, Path: path}
}

// NewMergeConflict creates a MERGE_CONFLICT error.
func NewMergeConflict(subject, path, message string) *Error {
	return &Error{Code: ErrCodeMergeConflict, Message: message, Subject: subject, Path: path}
}

// NewInvariantViolation creates an INVARIANT_VIOLATION error.
func NewInvariantViolation(subject, message string) *Error {
	return &Error{Code: ErrCodeInvariantViolation, Message: message, Subject: subject}
}

// CodeOf returns the ErrorCode of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsMergeConflict reports whether err is a MERGE_CONFLICT error.
func IsMergeConflict(err error) bool { return CodeOf(err) == ErrCodeMergeConflict }

// IsInvariantViolation reports whether err is an INVARIANT_VIOLATION error.
func IsInvariantViolation(err error) bool { return CodeOf(err) == ErrCodeInvariantViolation }
