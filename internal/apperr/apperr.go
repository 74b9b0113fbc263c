// Package apperr defines the error kinds the report pipeline surfaces to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers (handlers map it to a status code)
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindStorage       Kind = "storage"
	KindRender        Kind = "render"
	KindGateway       Kind = "gateway"
	KindInternal      Kind = "internal"
)

// Error is a classified error carrying the failing operation name
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// MessageOf returns the user-facing message of a classified error
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}

func Validation(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func NotFound(op, message string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func StateConflict(op, message string) error {
	return &Error{Kind: KindStateConflict, Op: op, Message: message}
}

func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Message: "Storage service unavailable", Err: err}
}

func Render(op string, err error) error {
	return &Error{Kind: KindRender, Op: op, Message: "Failed to render report document", Err: err}
}

func Gateway(op string, err error) error {
	return &Error{Kind: KindGateway, Op: op, Message: "Payment service unavailable", Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
