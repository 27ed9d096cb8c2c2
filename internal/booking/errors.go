package booking

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the requested window is already taken.
var ErrUnavailable = errors.New("requested time is unavailable")

// ValidationError reports a request that can never succeed as sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IOError wraps a storage or transport failure.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op string, err error) error {
	return &IOError{Op: op, Err: err}
}
