// Package apperr defines the error taxonomy shared by the service and HTTP
// layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by who caused it.
type Kind int

const (
	// KindInternal is an unexpected server-side failure.
	KindInternal Kind = iota
	// KindValidation is a malformed or incomplete request.
	KindValidation
	// KindNotFound means a referenced exam, result or user does not exist.
	KindNotFound
	// KindUnauthenticated means credentials are missing or invalid.
	KindUnauthenticated
	// KindForbidden means the caller may not access the resource.
	KindForbidden
	// KindDataIntegrity means stored content violates its own invariants.
	KindDataIntegrity
	// KindConflict means the request collides with existing data.
	KindConflict
	// KindUnavailable means an optional backend is not configured or down.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindDataIntegrity:
		return "data_integrity"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a translation message ID for the user-facing text,
// and an optional wrapped cause.
type Error struct {
	Kind      Kind
	MessageID string
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(messageID, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, MessageID: messageID, Detail: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(messageID, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, MessageID: messageID, Detail: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error.
func Conflict(messageID, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, MessageID: messageID, Detail: fmt.Sprintf(format, args...)}
}

// Unavailable returns a KindUnavailable error.
func Unavailable(messageID string, err error) *Error {
	return &Error{Kind: KindUnavailable, MessageID: messageID, Err: err}
}

// Unauthenticated returns a KindUnauthenticated error.
func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, MessageID: "ErrUnauthenticated"}
}

// Forbidden returns a KindForbidden error.
func Forbidden() *Error {
	return &Error{Kind: KindForbidden, MessageID: "ErrForbidden"}
}

// Integrity wraps err as a KindDataIntegrity error.
func Integrity(err error) *Error {
	return &Error{Kind: KindDataIntegrity, MessageID: "ErrDataIntegrity", Err: err}
}

// Internal wraps err as a KindInternal error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, MessageID: "ErrInternal", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain, wrapping unknown errors as
// internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
