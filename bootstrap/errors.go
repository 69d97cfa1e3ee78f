package bootstrap

import (
	"errors"
	"fmt"
)

// Code classifies bootstrap failures.
type Code int

const (
	// BadValue marks a DHT value string that does not parse as a
	// bootstrap record.
	BadValue Code = iota + 1
	// BadScheme marks a server URL whose scheme is not wss or https.
	BadScheme
)

func (c Code) String() string {
	switch c {
	case BadValue:
		return "bad value"
	case BadScheme:
		return "bad scheme"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is a coded bootstrap error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bootstrap: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("bootstrap: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func wrapError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
