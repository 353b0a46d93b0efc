// Package domainerrors provides coded domain errors. Services return these so
// transport layers can map outcomes to status codes without string matching,
// and so callers can distinguish caller-correctable failures from transient
// and internal ones.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// Validation family: caller-fixable, never retried.
	CodeValidation   Code = "validation"
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"

	// Conflict family: the caller should re-fetch current state before
	// retrying with adjusted input.
	CodeConflict         Code = "conflict"
	CodeExceedsTarget    Code = "exceeds_target"
	CodeBelowMinimum     Code = "below_minimum"
	CodeCampaignExpired  Code = "campaign_expired"
	CodeContributorLimit Code = "contributor_limit_reached"

	// Transient family: retried internally with backoff; exhaustion
	// escalates to CodeInternal and, for money-affecting operations, a
	// reconciliation entry.
	CodeUnavailable Code = "unavailable"
	CodeTimeout     Code = "timeout"

	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf extracts the outermost code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	return Is(err, CodeUnavailable) || Is(err, CodeTimeout)
}

// HTTPStatus maps a domain error to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeInvalidInput, CodeBadRequest, CodeBelowMinimum:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeExceedsTarget, CodeCampaignExpired, CodeContributorLimit:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
