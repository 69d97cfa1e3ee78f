package keys

import (
	"testing"

	"github.com/justinmoon/mosaic-core/wire"
)

func TestDeriveSubkeyDeterministic(t *testing.T) {
	master := mustKey(t, 5)

	a1, err := DeriveSubkey(master, 0)
	if err != nil {
		t.Fatalf("DeriveSubkey: %v", err)
	}
	a2, err := DeriveSubkey(master, 0)
	if err != nil {
		t.Fatalf("DeriveSubkey: %v", err)
	}
	if !a1.Equal(a2) {
		t.Fatal("same index derived different subkeys")
	}

	b, err := DeriveSubkey(master, 1)
	if err != nil {
		t.Fatalf("DeriveSubkey: %v", err)
	}
	if a1.Equal(b) {
		t.Fatal("distinct indexes derived the same subkey")
	}
	if a1.Equal(master) {
		t.Fatal("subkey equals master")
	}
}

func TestDeriveSubkeyZeroMaster(t *testing.T) {
	var zero SecretKey
	if _, err := DeriveSubkey(zero, 0); err != ErrInvalidKey {
		t.Fatalf("DeriveSubkey(zero) = %v, want ErrInvalidKey", err)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	master := mustKey(t, 6)
	sub, err := DeriveSubkey(master, 3)
	if err != nil {
		t.Fatalf("DeriveSubkey: %v", err)
	}

	sched := Schedule{
		{PublicKey: master.Public(), Marker: ActiveSigningKey},
		{PublicKey: sub.Public(), Marker: OutOfUse, TimestampMillis: 1_700_000_000_000},
	}
	enc, err := sched.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeSchedule(enc)
	if err != nil {
		t.Fatalf("DecodeSchedule: %v", err)
	}
	if len(got) != len(sched) {
		t.Fatalf("decoded %d entries, want %d", len(got), len(sched))
	}
	for i := range sched {
		if got[i] != sched[i] {
			t.Fatalf("entry %d mismatch: %+v != %+v", i, got[i], sched[i])
		}
	}
}

func TestScheduleRejectsTimestampOnActiveKey(t *testing.T) {
	sched := Schedule{
		{PublicKey: mustKey(t, 1).Public(), Marker: ActiveSigningKey, TimestampMillis: 5},
	}
	if _, err := sched.Encode(); err == nil {
		t.Fatal("Encode accepted a timestamp on an active key entry")
	}
}

func TestDecodeScheduleUnknownMarker(t *testing.T) {
	sched := Schedule{{PublicKey: mustKey(t, 2).Public(), Marker: ActiveSigningKey}}
	enc, err := sched.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Marker sits right after the count and the 32-byte key.
	enc[2+PublicKeySize] = 0xEE
	enc[2+PublicKeySize+1] = 0xEE

	_, err = DecodeSchedule(enc)
	if !wire.IsCode(err, wire.UnknownVariant) {
		t.Fatalf("DecodeSchedule = %v, want UnknownVariant", err)
	}
}

func TestDecodeScheduleTrailingBytes(t *testing.T) {
	sched := Schedule{{PublicKey: mustKey(t, 2).Public(), Marker: ActiveSigningKey}}
	enc, err := sched.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = DecodeSchedule(append(enc, 0))
	if !wire.IsCode(err, wire.NonCanonical) {
		t.Fatalf("DecodeSchedule = %v, want NonCanonical", err)
	}
}
