package record

import (
	"errors"
	"fmt"
)

// ErrInvalidHeader reports a header that violates structural
// constraints at build time (unknown kind, tag limits, author
// mismatch). It is never produced by Verify.
var ErrInvalidHeader = errors.New("record: invalid header")

func invalidHeaderf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidHeader, fmt.Sprintf(format, args...))
}

// VerifyCode is a stable category for verification failures.
//
// Verification failure is an expected outcome for network-sourced
// records; callers branch on the code and discard the record.
type VerifyCode string

const (
	// Tampered means the stored bytes are not the canonical re-encoding
	// of the record's own header and payload.
	Tampered VerifyCode = "Tampered"

	// BadSignature means the signature does not verify against the
	// author's public key.
	BadSignature VerifyCode = "BadSignature"

	// BadAddress means the record's claimed address does not match the
	// derivation mandated for its kind.
	BadAddress VerifyCode = "BadAddress"

	// Expired means the header declares an expiration earlier than the
	// supplied reference time. Expiration is advisory metadata, checked
	// by policy, not cryptographically enforced.
	Expired VerifyCode = "Expired"
)

// VerifyError is the structured verification error type.
type VerifyError struct {
	Code    VerifyCode
	Message string
}

func (e *VerifyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "record: " + e.Message
}

func verifyError(code VerifyCode, msg string) error {
	return &VerifyError{Code: code, Message: msg}
}

// IsVerifyCode reports whether err is (or wraps) a *VerifyError with
// the given code.
func IsVerifyCode(err error, code VerifyCode) bool {
	var e *VerifyError
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
