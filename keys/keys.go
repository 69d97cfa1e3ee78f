package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

const (
	// PublicKeySize is the width of a packed public key.
	PublicKeySize = 32

	// SecretKeySize is the width of a packed secret key (an ed25519 seed).
	SecretKeySize = 32

	// SignatureSize is the width of a signature.
	SignatureSize = 64

	publicPrefix = "mopub0"
	secretPrefix = "mosec0"
)

// signingContext domain-separates Mosaic signatures from any other use
// of the same keypair.
const signingContext = "mosaic:sign:v0"

// ErrInvalidKey reports structurally invalid key material. It is a
// programming-contract violation for keys produced by Generate.
var ErrInvalidKey = errors.New("keys: invalid key material")

// ErrInvalidPrintable reports a printable form that does not parse.
var ErrInvalidPrintable = errors.New("keys: invalid printable form")

// PublicKey is a packed ed25519 verification key.
type PublicKey [PublicKeySize]byte

// SecretKey is a packed ed25519 seed. The zero value is invalid.
type SecretKey struct {
	b [SecretKeySize]byte
}

// Signature is a detached ed25519 signature.
type Signature [SignatureSize]byte

// Generate creates a new SecretKey from a cryptographically secure
// random source. Passing nil uses crypto/rand.
func Generate(random io.Reader) (SecretKey, error) {
	if random == nil {
		random = rand.Reader
	}
	var s SecretKey
	if _, err := io.ReadFull(random, s.b[:]); err != nil {
		return SecretKey{}, fmt.Errorf("keys: generate: %w", err)
	}
	return s, nil
}

// SecretKeyFromBytes packs 32 seed bytes into a SecretKey.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	if len(b) != SecretKeySize {
		return SecretKey{}, ErrInvalidKey
	}
	var s SecretKey
	copy(s.b[:], b)
	return s, nil
}

// Bytes returns the packed seed.
func (s SecretKey) Bytes() []byte {
	out := make([]byte, SecretKeySize)
	copy(out, s.b[:])
	return out
}

// IsZero reports whether s is the (invalid) zero key.
func (s SecretKey) IsZero() bool {
	var zero [SecretKeySize]byte
	return subtle.ConstantTimeCompare(s.b[:], zero[:]) == 1
}

// Equal compares two secret keys in constant time.
func (s SecretKey) Equal(o SecretKey) bool {
	return subtle.ConstantTimeCompare(s.b[:], o.b[:]) == 1
}

// Public computes the PublicKey matching this SecretKey.
func (s SecretKey) Public() PublicKey {
	priv := ed25519.NewKeyFromSeed(s.b[:])
	var p PublicKey
	copy(p[:], priv.Public().(ed25519.PublicKey))
	return p
}

// Sign signs msg. The signature is computed over the blake3-256 digest
// of msg under the Mosaic signing context, so large records are never
// fed to ed25519 directly.
//
// Sign fails only for structurally invalid key material, which is
// unreachable for keys produced by Generate.
func (s SecretKey) Sign(msg []byte) (Signature, error) {
	if s.IsZero() {
		return Signature{}, ErrInvalidKey
	}
	priv := ed25519.NewKeyFromSeed(s.b[:])
	digest := signingDigest(msg)
	var sig Signature
	copy(sig[:], ed25519.Sign(priv, digest[:]))
	return sig, nil
}

// Verify reports whether sig is a valid signature by p over msg.
// Any cryptographic mismatch, including malformed or non-canonical
// signatures, yields false.
func (p PublicKey) Verify(msg []byte, sig Signature) bool {
	digest := signingDigest(msg)
	return ed25519.Verify(ed25519.PublicKey(p[:]), digest[:], sig[:])
}

func signingDigest(msg []byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(signingContext))
	h.Write([]byte{0})
	h.Write(msg)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// PublicKeyFromBytes packs 32 bytes into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, ErrInvalidKey
	}
	var p PublicKey
	copy(p[:], b)
	return p, nil
}

// Bytes returns the packed key.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, p[:])
	return out
}

// Printable returns the "mopub0" form of the key.
func (p PublicKey) Printable() string {
	return publicPrefix + base58.Encode(p[:])
}

// String implements fmt.Stringer.
func (p PublicKey) String() string {
	return p.Printable()
}

// ParsePublicKey imports a PublicKey from its printable form.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := parsePrintable(s, publicPrefix, PublicKeySize)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyFromBytes(b)
}

// Printable returns the "mosec0" form of the key. Handle with care;
// this exposes the secret.
func (s SecretKey) Printable() string {
	return secretPrefix + base58.Encode(s.b[:])
}

// String prints a redacted placeholder, never the secret itself.
func (s SecretKey) String() string {
	return secretPrefix + "…"
}

// ParseSecretKey imports a SecretKey from its printable form.
func ParseSecretKey(str string) (SecretKey, error) {
	b, err := parsePrintable(str, secretPrefix, SecretKeySize)
	if err != nil {
		return SecretKey{}, err
	}
	return SecretKeyFromBytes(b)
}

func parsePrintable(s, prefix string, want int) ([]byte, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, ErrInvalidPrintable
	}
	b, err := base58.Decode(s[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrintable, err)
	}
	if len(b) != want {
		return nil, ErrInvalidPrintable
	}
	return b, nil
}
