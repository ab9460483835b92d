package services

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind classifies domain failures for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a classified domain error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func ErrValidation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ErrUnauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func ErrForbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func ErrNotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func ErrConflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

// ErrInternal wraps an unexpected failure.
func ErrInternal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err. Unclassified errors are internal,
// except mongo.ErrNoDocuments which is reported as not found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return KindNotFound
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "not found"
	}
	return err.Error()
}
