package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("timeout")
	ErrHostNotFound = errors.New("host not found")
	ErrRegistration = errors.New("registration failed")
	ErrNegotiation  = errors.New("negotiation failed")
	ErrDestroyed    = errors.New("channel destroyed")
	ErrUnknownMode  = errors.New("unknown transport mode")
	ErrIDTaken      = errors.New("peer id already taken")
	ErrClosed       = errors.New("connection closed")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// StatusFor maps a failed attempt to the status it should publish.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusConnected
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrHostNotFound):
		return StatusHostNotFound
	case errors.Is(err, ErrNegotiation):
		return StatusNegotiationError
	case errors.Is(err, ErrDestroyed), errors.Is(err, context.Canceled):
		return StatusDisconnected
	default:
		return StatusError
	}
}
