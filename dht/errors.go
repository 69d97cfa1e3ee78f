package dht

import "errors"

// Code is a stable category for DHT failures. All DHT errors are
// recoverable; callers get partial or empty results rather than a
// crashed process.
type Code string

const (
	// Timeout means a query exceeded its deadline or the caller's
	// context was cancelled.
	Timeout Code = "Timeout"

	// NoRoute means the routing table has no contacts to query.
	NoRoute Code = "NoRoute"

	// Malformed means a peer sent a response that does not parse or
	// contradicts the protocol.
	Malformed Code = "Malformed"

	// Shutdown means the client has been closed.
	Shutdown Code = "Shutdown"
)

// Error is the structured DHT error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "dht: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func wrapError(code Code, msg string, cause error) error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err is (or wraps) a *Error with the given
// code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
