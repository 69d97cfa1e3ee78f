package wire

import "errors"

// Code is a stable category for programmatic decode-error handling.
//
// Callers should branch on Code rather than matching error strings;
// Error() text is for humans and may evolve.
type Code string

const (
	// Truncated means the input ended before the value did.
	Truncated Code = "Truncated"

	// NonCanonical means the input is structurally parseable but is not
	// the unique canonical encoding of any value (padding, out-of-range
	// fields, trailing bytes, reserved bits set).
	NonCanonical Code = "NonCanonical"

	// UnknownVariant means an enumerated field carried a value outside
	// the known range for this protocol version.
	UnknownVariant Code = "UnknownVariant"
)

// Error is the codec's structured error type.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "wire: " + e.Message
}

func newError(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// IsCode reports whether err is (or wraps) a *Error with the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// ErrCode returns the Code for a structured codec error, or "" if err
// is not one.
func ErrCode(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
