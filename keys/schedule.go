package keys

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/justinmoon/mosaic-core/wire"
)

// deriveContext domain-separates subkey derivation.
const deriveContext = "mosaic:subkey:v0"

// Marker describes the role and status of a schedule entry's key.
type Marker uint16

const (
	// ActiveSigningKey is an active ed25519 key used for signing.
	ActiveSigningKey Marker = 0x00

	// ActiveEncryptionKey is an active x25519 key used for encryption.
	ActiveEncryptionKey Marker = 0x01

	// RevokedAll marks a key revoked for all time.
	RevokedAll Marker = 0x40

	// RevokedPast marks a key revoked for events before the timestamp.
	RevokedPast Marker = 0x41

	// OutOfUse marks a key retired as of the timestamp, but not revoked.
	OutOfUse Marker = 0x4F
)

// Known reports whether m is a marker this version understands.
func (m Marker) Known() bool {
	switch m {
	case ActiveSigningKey, ActiveEncryptionKey, RevokedAll, RevokedPast, OutOfUse:
		return true
	}
	return false
}

// UsesTimestamp reports whether the entry's timestamp field is
// meaningful for this marker. When false the field must be zero.
func (m Marker) UsesTimestamp() bool {
	switch m {
	case RevokedAll, RevokedPast, OutOfUse:
		return true
	}
	return false
}

func (m Marker) String() string {
	switch m {
	case ActiveSigningKey:
		return "ActiveSigningKey"
	case ActiveEncryptionKey:
		return "ActiveEncryptionKey"
	case RevokedAll:
		return "RevokedAll"
	case RevokedPast:
		return "RevokedPast"
	case OutOfUse:
		return "OutOfUse"
	}
	return fmt.Sprintf("Marker(%#x)", uint16(m))
}

// DeriveSubkey deterministically derives the index'th subkey of a
// master secret. Distinct indexes yield independent keys; the master
// key cannot be recovered from any subkey.
func DeriveSubkey(master SecretKey, index uint32) (SecretKey, error) {
	if master.IsZero() {
		return SecretKey{}, ErrInvalidKey
	}
	var src [SecretKeySize + 4]byte
	copy(src[:SecretKeySize], master.b[:])
	binary.LittleEndian.PutUint32(src[SecretKeySize:], index)

	var s SecretKey
	blake3.DeriveKey(s.b[:], deriveContext, src[:])
	return s, nil
}

// ScheduleEntry declares one subkey and its status.
type ScheduleEntry struct {
	PublicKey PublicKey
	Marker    Marker

	// TimestampMillis relates to the marker (revocation or retirement
	// time). Zero for markers that do not use a timestamp.
	TimestampMillis uint64
}

// Validate checks structural constraints on the entry.
func (e ScheduleEntry) Validate() error {
	if !e.Marker.Known() {
		return fmt.Errorf("keys: unknown schedule marker %#x", uint16(e.Marker))
	}
	if !e.Marker.UsesTimestamp() && e.TimestampMillis != 0 {
		return fmt.Errorf("keys: marker %v does not take a timestamp", e.Marker)
	}
	if e.TimestampMillis > wire.MaxTimestampMillis {
		return fmt.Errorf("keys: schedule timestamp out of range")
	}
	return nil
}

// Schedule is the ordered subkey declaration list carried in the
// payload of a KeySchedule record. Order is significant and signed.
type Schedule []ScheduleEntry

// MaxScheduleEntries bounds a schedule's length.
const MaxScheduleEntries = 256

// Encode produces the canonical payload bytes for the schedule.
func (s Schedule) Encode() ([]byte, error) {
	if len(s) > MaxScheduleEntries {
		return nil, fmt.Errorf("keys: schedule has %d entries, max %d", len(s), MaxScheduleEntries)
	}
	e := wire.NewEncoder(2 + len(s)*(PublicKeySize+2+6))
	e.U16(uint16(len(s)))
	for _, ent := range s {
		if err := ent.Validate(); err != nil {
			return nil, err
		}
		e.Raw(ent.PublicKey[:])
		e.U16(uint16(ent.Marker))
		e.U48(ent.TimestampMillis)
	}
	return e.Bytes(), nil
}

// DecodeSchedule parses canonical schedule payload bytes. Unknown
// markers are rejected with a wire UnknownVariant error so that readers
// never silently misinterpret a future schedule.
func DecodeSchedule(b []byte) (Schedule, error) {
	d := wire.NewDecoder(b)
	n, err := d.U16("entry count")
	if err != nil {
		return nil, err
	}
	if int(n) > MaxScheduleEntries {
		return nil, fmt.Errorf("keys: schedule has %d entries, max %d", n, MaxScheduleEntries)
	}
	out := make(Schedule, 0, n)
	for i := 0; i < int(n); i++ {
		kb, err := d.Raw(PublicKeySize, "subkey")
		if err != nil {
			return nil, err
		}
		var ent ScheduleEntry
		copy(ent.PublicKey[:], kb)
		m, err := d.U16("marker")
		if err != nil {
			return nil, err
		}
		ent.Marker = Marker(m)
		ts, err := d.U48("marker timestamp")
		if err != nil {
			return nil, err
		}
		ent.TimestampMillis = ts
		if err := ent.Validate(); err != nil {
			if !ent.Marker.Known() {
				return nil, &wire.Error{Code: wire.UnknownVariant, Message: fmt.Sprintf("schedule marker %#x", m)}
			}
			return nil, err
		}
		out = append(out, ent)
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return out, nil
}
