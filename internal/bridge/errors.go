package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument covers malformed calls and unresolvable paths.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for a path that does not resolve to a leaf.
	// It wraps ErrInvalidArgument.
	ErrNotFound = fmt.Errorf("not found: %w", ErrInvalidArgument)
	// ErrNotReady is returned when a call gives up waiting for readiness.
	ErrNotReady = errors.New("not ready")
	// ErrInternal marks a handler failure that carried no more specific code.
	ErrInternal = errors.New("internal error")
	// ErrClosed rejects calls outstanding on a connection that went away.
	ErrClosed = errors.New("bridge closed")
	// ErrFrameTooLarge is returned by a Conn whose transport cannot carry a
	// message of the given size. The connection stays usable.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Code is the wire form of an error class.
type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotFound        Code = "not_found"
	CodeNotReady        Code = "not_ready"
	CodeInternal        Code = "internal"
	CodeClosed          Code = "closed"
)

// Error is a serialized handler failure. Message is always non-empty.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// Unwrap maps the code back to its sentinel so errors.Is works on the
// invoking side.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeInvalidArgument:
		return ErrInvalidArgument
	case CodeNotFound:
		return ErrNotFound
	case CodeNotReady:
		return ErrNotReady
	case CodeClosed:
		return ErrClosed
	default:
		return ErrInternal
	}
}

// NewError builds an Error with the given code.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ToError classifies err for the wire. nil maps to nil.
func ToError(err error) *Error {
	if err == nil {
		return nil
	}
	var wireErr *Error
	if errors.As(err, &wireErr) && wireErr != nil {
		return &Error{Code: wireErr.Code, Message: err.Error()}
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &Error{Code: CodeNotFound, Message: msg}
	case errors.Is(err, ErrInvalidArgument):
		return &Error{Code: CodeInvalidArgument, Message: msg}
	case errors.Is(err, ErrNotReady):
		return &Error{Code: CodeNotReady, Message: msg}
	case errors.Is(err, ErrClosed):
		return &Error{Code: CodeClosed, Message: msg}
	default:
		return &Error{Code: CodeInternal, Message: msg}
	}
}
