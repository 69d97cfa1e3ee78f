package keys

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// EncryptedSecretKey is a passphrase-protected secret key container
// suitable for export to disk or clipboard.
//
// Layout:
//
//	0       version byte (0x02)
//	1       scrypt log2(N)
//	2..18   scrypt salt
//	18..30  chacha20poly1305 nonce
//	30..78  sealed secret key (32 bytes + 16 byte tag)
type EncryptedSecretKey []byte

const (
	exportVersion = 0x02

	// MaxLogN caps the scrypt work factor so a hostile container cannot
	// demand unbounded computation during decryption.
	MaxLogN = 22

	exportSaltLen = 16
	exportLen     = 2 + exportSaltLen + chacha20poly1305.NonceSize + SecretKeySize + 16
)

// ErrWrongPassphrase reports a decryption failure. A corrupted
// container and a wrong passphrase are indistinguishable.
var ErrWrongPassphrase = errors.New("keys: wrong passphrase or corrupted container")

// Encrypt seals a SecretKey under a passphrase. logN selects the scrypt
// work factor (18 is a reasonable interactive default).
func (s SecretKey) Encrypt(passphrase string, logN uint8) (EncryptedSecretKey, error) {
	if s.IsZero() {
		return nil, ErrInvalidKey
	}
	if logN == 0 || logN > MaxLogN {
		return nil, fmt.Errorf("keys: scrypt logN %d out of range [1,%d]", logN, MaxLogN)
	}

	out := make([]byte, 2+exportSaltLen+chacha20poly1305.NonceSize, exportLen)
	out[0] = exportVersion
	out[1] = logN
	salt := out[2 : 2+exportSaltLen]
	nonce := out[2+exportSaltLen:]
	if _, err := io.ReadFull(rand.Reader, out[2:]); err != nil {
		return nil, fmt.Errorf("keys: encrypt: %w", err)
	}

	aead, err := exportAEAD(passphrase, salt, logN)
	if err != nil {
		return nil, err
	}
	out = aead.Seal(out, nonce, s.b[:], out[:2])
	return EncryptedSecretKey(out), nil
}

// Decrypt opens the container with the given passphrase.
func (e EncryptedSecretKey) Decrypt(passphrase string) (SecretKey, error) {
	if len(e) != exportLen {
		return SecretKey{}, fmt.Errorf("keys: encrypted container is %d bytes, want %d", len(e), exportLen)
	}
	if e[0] != exportVersion {
		return SecretKey{}, fmt.Errorf("keys: unsupported encrypted key version %#x", e[0])
	}
	logN := e[1]
	if logN == 0 || logN > MaxLogN {
		return SecretKey{}, fmt.Errorf("keys: scrypt logN %d out of range [1,%d]", logN, MaxLogN)
	}
	salt := e[2 : 2+exportSaltLen]
	nonce := e[2+exportSaltLen : 2+exportSaltLen+chacha20poly1305.NonceSize]
	sealed := e[2+exportSaltLen+chacha20poly1305.NonceSize:]

	aead, err := exportAEAD(passphrase, salt, logN)
	if err != nil {
		return SecretKey{}, err
	}
	plain, err := aead.Open(nil, nonce, sealed, e[:2])
	if err != nil {
		return SecretKey{}, ErrWrongPassphrase
	}
	return SecretKeyFromBytes(plain)
}

func exportAEAD(passphrase string, salt []byte, logN uint8) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, 1<<logN, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("keys: scrypt: %w", err)
	}
	return chacha20poly1305.New(key)
}
