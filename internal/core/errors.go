package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrQuery         = errors.New("query failed")
	ErrUpstream      = errors.New("upstream failure")
)

// Error carries a kind plus the offending field (validation) or the wrapped cause.
type Error struct {
	Kind    error
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		if msg == "" {
			return fmt.Sprintf("%v: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, reason string) error {
	return &Error{Kind: ErrValidation, Field: field, Message: reason}
}

func NotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func Unauthorized(entity string, id any) error {
	return &Error{Kind: ErrAuthorization, Message: fmt.Sprintf("%s %v belongs to another user", entity, id)}
}

func Conflict(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}

func InvalidState(message string) error {
	return &Error{Kind: ErrInvalidState, Message: message}
}

func QueryFailed(op string, err error) error {
	return &Error{Kind: ErrQuery, Message: op, Err: err}
}

func UpstreamFailed(op string, err error) error {
	return &Error{Kind: ErrUpstream, Message: op, Err: err}
}

// Kinds lists every error kind, most specific first.
func Kinds() []error {
	return []error{ErrValidation, ErrNotFound, ErrAuthorization, ErrConflict, ErrInvalidState, ErrQuery, ErrUpstream}
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range Kinds() {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// FieldOf returns the offending field of a validation error.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
