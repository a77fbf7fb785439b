// Package errors defines the typed failures of the key-value service and
// their HTTP status mapping.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// Kind classifies failures for consistent status mapping.
type Kind string

const (
	KindUnknown              Kind = "unknown"
	KindNotFound             Kind = "not_found"
	KindInvalidKey           Kind = "invalid_key"
	KindBadRequest           Kind = "bad_request"
	KindUnsupportedContent   Kind = "unsupported_content"
	KindUnsupportedOperation Kind = "unsupported_operation"
	KindUnauthorized         Kind = "unauthorized"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindLockPoisoned         Kind = "lock_poisoned"
	KindEncodingFailed       Kind = "encoding_failed"
)

// Sentinels for errors.Is checks. Matching is by Kind, so a wrapped error
// with a different message still matches its sentinel.
var (
	ErrNotFound             = E(KindNotFound, "key not found")
	ErrInvalidKey           = E(KindInvalidKey, "key must not be empty")
	ErrBadRequest           = E(KindBadRequest, "malformed request")
	ErrUnsupportedContent   = E(KindUnsupportedContent, "body is not a decodable image")
	ErrUnsupportedOperation = E(KindUnsupportedOperation, "value is not an image")
	ErrUnauthorized         = E(KindUnauthorized, "unauthorized")
	ErrPayloadTooLarge      = E(KindPayloadTooLarge, "request body too large")
	ErrLockPoisoned         = E(KindLockPoisoned, "store is poisoned, restart required")
	ErrEncodingFailed       = E(KindEncodingFailed, "image encoding failed")
)

// Error is a typed application failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error renders the human-readable message.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// E builds a typed Error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed Error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first typed Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return KindUnknown
	}
	return appErr.Kind
}

// Message returns the message safe to show a client. Untyped errors are
// reported generically so internal detail does not leak.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "request timed out"
		}
		return "internal server error"
	}
	if appErr.Message == "" {
		return string(appErr.Kind)
	}
	return appErr.Message
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidKey, KindBadRequest, KindUnsupportedContent:
		return http.StatusBadRequest
	case KindUnsupportedOperation:
		return http.StatusUnsupportedMediaType
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindLockPoisoned, KindEncodingFailed:
		return http.StatusInternalServerError
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
