package keys

import "testing"

// Low work factor keeps the test fast; the container format is the
// same at every logN.
const testLogN = 4

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := mustKey(t, 11)

	enc, err := s.Encrypt("correct horse", testLogN)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := enc.Decrypt("correct horse")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !got.Equal(s) {
		t.Fatal("decrypted key differs from original")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	s := mustKey(t, 12)
	enc, err := s.Encrypt("right", testLogN)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := enc.Decrypt("wrong"); err != ErrWrongPassphrase {
		t.Fatalf("Decrypt = %v, want ErrWrongPassphrase", err)
	}
}

func TestDecryptCorruptedContainer(t *testing.T) {
	s := mustKey(t, 13)
	enc, err := s.Encrypt("pw", testLogN)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for i := 2; i < len(enc); i++ {
		bad := append(EncryptedSecretKey(nil), enc...)
		bad[i] ^= 0x80
		if _, err := bad.Decrypt("pw"); err == nil {
			t.Fatalf("corrupted container (byte %d) decrypted", i)
		}
	}
}

func TestEncryptRejectsExcessiveLogN(t *testing.T) {
	s := mustKey(t, 14)
	if _, err := s.Encrypt("pw", MaxLogN+1); err == nil {
		t.Fatal("Encrypt accepted logN above the cap")
	}
}

func TestDecryptRejectsHostileLogN(t *testing.T) {
	s := mustKey(t, 15)
	enc, err := s.Encrypt("pw", testLogN)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	enc[1] = MaxLogN + 10
	if _, err := enc.Decrypt("pw"); err == nil {
		t.Fatal("Decrypt accepted a hostile work factor")
	}
}

func TestEncryptZeroKey(t *testing.T) {
	var zero SecretKey
	if _, err := zero.Encrypt("pw", testLogN); err != ErrInvalidKey {
		t.Fatalf("Encrypt(zero) = %v, want ErrInvalidKey", err)
	}
}
