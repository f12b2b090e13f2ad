// Package apperr defines the error taxonomy surfaced at the request boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindPersistence   Kind = "persistence"
)

// Upstream error codes.
const (
	CodeRateLimited   = "rate_limited"
	CodeQuotaExceeded = "quota_exceeded"
	CodeUnavailable   = "upstream_unavailable"
	CodeMalformed     = "malformed_response"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
)

// Error is a classified application error.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Forbidden reports that the caller lacks the role or ownership required.
func Forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: message}
}

// Unauthenticated reports a missing or invalid identity.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeUnauthorized, Message: message}
}

// Validation reports malformed or missing input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotFound reports that a referenced entity does not resolve.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Persistence wraps a store failure.
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// RateLimited reports a retryable upstream throttling signal.
func RateLimited(err error) *Error {
	return &Error{
		Kind:      KindUpstream,
		Code:      CodeRateLimited,
		Message:   "the tutor is receiving too many requests, please try again shortly",
		Retryable: true,
		Err:       err,
	}
}

// QuotaExceeded reports an exhausted upstream quota; resubmitting will not help.
func QuotaExceeded(err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    CodeQuotaExceeded,
		Message: "the tutor is unavailable because the usage quota has been exhausted",
		Err:     err,
	}
}

// Unavailable reports an unreachable or failing upstream.
func Unavailable(err error) *Error {
	return &Error{
		Kind:      KindUpstream,
		Code:      CodeUnavailable,
		Message:   "the tutor could not be reached",
		Retryable: true,
		Err:       err,
	}
}

// Malformed reports an upstream payload that did not match the expected structure.
func Malformed(err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    CodeMalformed,
		Message: "the tutor returned an unreadable response",
		Err:     err,
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps an error to its response status. Unclassified errors are internal.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindAuthorization:
		if e.Code == CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		switch e.Code {
		case CodeRateLimited, CodeQuotaExceeded:
			return http.StatusTooManyRequests
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a caller.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "internal error"
	}
	if e.Kind == KindPersistence {
		return "internal error"
	}
	return e.Message
}
