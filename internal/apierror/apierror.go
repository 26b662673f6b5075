// Package apierror maps the gateway's error taxonomy to HTTP status
// codes and the shared JSON error envelope.
package apierror

import "net/http"

// Kind is one of the gateway's enumerated error kinds.
type Kind string

const (
	KindAuthMissing Kind = "auth_missing"
	KindAuthInvalid Kind = "auth_invalid"
	KindAuthScope   Kind = "auth_scope"
	KindRateLimited Kind = "rate_limited"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

// Error is a handler-surfaced error carrying enough information to render
// the JSON envelope `{error, message}` with the right HTTP status.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthMissing, KindAuthInvalid:
		return http.StatusUnauthorized
	case KindAuthScope:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
