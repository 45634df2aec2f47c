package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies storefront failures for callers and the HTTP layer.
type ErrorCode string

const (
	// ErrorInvalidInput indicates client-supplied data failed validation.
	// All violations are collected, not just the first.
	ErrorInvalidInput ErrorCode = "invalid_input"
	// ErrorNotFound indicates a referenced offer, subscription, or customer
	// does not exist.
	ErrorNotFound ErrorCode = "not_found"
	// ErrorRenewalNotEligible indicates the subscription is outside the
	// renewal window.
	ErrorRenewalNotEligible ErrorCode = "renewal_not_eligible"
	// ErrorPersistenceFailure indicates an underlying store read or write failed.
	ErrorPersistenceFailure ErrorCode = "persistence_failure"
	// ErrorGatewayFailure indicates a payment provider returned an error or
	// a non-success status.
	ErrorGatewayFailure ErrorCode = "gateway_failure"
	// ErrorFatal indicates an unrecoverable process-level condition. Fatal
	// errors are always rethrown, never swallowed.
	ErrorFatal ErrorCode = "fatal"
)

// FieldViolation names one offending field and the reason it was rejected.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the structured error carried across service boundaries. It holds
// the taxonomy code plus a detail payload sufficient for the presentation
// layer to render a specific message.
type Error struct {
	Code       ErrorCode
	Message    string
	Details    map[string]string
	Violations []FieldViolation
	cause      error
}

// NewError constructs an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError constructs an Error preserving the underlying cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches a named detail value and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithViolation appends a field violation and returns the error for chaining.
func (e *Error) WithViolation(field, reason string) *Error {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Violations) > 0 {
		fields := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			fields = append(fields, v.Field)
		}
		fmt.Fprintf(&b, " (fields: %s)", strings.Join(fields, ", "))
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// ValidationError builds an invalid_input error from collected violations.
// Returns nil when no violations were recorded.
func ValidationError(violations []FieldViolation) *Error {
	if len(violations) == 0 {
		return nil
	}
	return &Error{
		Code:       ErrorInvalidInput,
		Message:    "order validation failed",
		Violations: violations,
	}
}

// CodeOf extracts the taxonomy code from err, defaulting to persistence_failure
// for unclassified errors.
func CodeOf(err error) ErrorCode {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Code
	}
	return ErrorPersistenceFailure
}

// IsFatal reports whether err carries the fatal classification. Rollback paths
// use this to decide whether a cleanup failure must propagate.
func IsFatal(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Code == ErrorFatal
	}
	return false
}

// IsNotFound reports whether err is a not_found domain error.
func IsNotFound(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Code == ErrorNotFound
	}
	return false
}
