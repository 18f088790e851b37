// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindUnauthenticated
	KindTokenExpired
	KindForbidden
	KindInvalidToken
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// FieldError is one entry of the "errors" list returned for validation failures.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError
	Err     error
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

// Status maps the kind to the HTTP status code used in responses.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindDuplicate:
		return http.StatusBadRequest
	case KindUnauthenticated, KindTokenExpired:
		return http.StatusUnauthorized
	case KindForbidden, KindInvalidToken:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: message, Fields: fields}
}

func Duplicate(message string) *Error {
	return &Error{Kind: KindDuplicate, Code: "duplicate", Message: message}
}

func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: message}
}

func TokenExpired(message string) *Error {
	return &Error{Kind: KindTokenExpired, Code: "token_expired", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: message}
}

func InvalidToken(message string) *Error {
	return &Error{Kind: KindInvalidToken, Code: "invalid_token", Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: message}
}

func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Code: "conflict", Message: message, Err: err}
}

func TooManyRequests(message string) *Error {
	return &Error{Kind: KindTooManyRequests, Code: "too_many_requests", Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
