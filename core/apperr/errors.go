// Package apperr defines the error kinds of spec §7 as a single typed
// error plus a terminal HTTP mapper and a session-event mapper,
// generalizing the teacher's scattered http.Error/writeJSON call sites
// in api/middleware.go into one funnel.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuthMissing Kind = "auth_missing"
	KindAuthInvalid Kind = "auth_invalid"
	KindAuthExpired Kind = "auth_expired"
	KindForbidden   Kind = "forbidden"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

func AuthMissing(msg string) *Error { return New(KindAuthMissing, "auth.missing", msg) }
func AuthInvalid(msg string) *Error { return New(KindAuthInvalid, "auth.invalid", msg) }
func AuthExpired(msg string) *Error { return New(KindAuthExpired, "auth.expired", msg) }
func Forbidden(msg string) *Error   { return New(KindForbidden, "auth.forbidden", msg) }
func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }
func NotFound(code, msg string) *Error   { return New(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error   { return New(KindConflict, code, msg) }
func Internal(msg string, cause error) *Error {
	return Wrap(KindInternal, "internal", msg, cause)
}

// As extracts an *Error, synthesizing an Internal one for anything else.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err.Error(), err)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindAuthMissing, KindAuthInvalid, KindAuthExpired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP is the single terminal error mapper for REST handlers.
func WriteHTTP(w http.ResponseWriter, err error, devMode bool) {
	e := As(err)
	status := statusFor(e.Kind)
	msg := e.Message
	if e.Kind == KindInternal && !devMode {
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": e.Code, "message": msg},
	})
}

// EventPayload renders the `{"event":"error","data":{...}}` envelope
// of spec §6 for delivery over the session transport.
func EventPayload(err error, devMode bool) map[string]any {
	e := As(err)
	msg := e.Message
	if e.Kind == KindInternal && !devMode {
		msg = "internal server error"
	}
	return map[string]any{
		"event": "error",
		"data":  map[string]string{"code": e.Code, "message": msg},
	}
}
