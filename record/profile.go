package record

import (
	"fmt"

	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/wire"
)

// Profile is the payload of a KindProfile record: the user-presented
// metadata published under an identity address.
type Profile struct {
	// Name is the user's typable name. Required.
	Name string

	DisplayName string
	About       string
	Website     string

	// Lud16 is a Bitcoin Lightning address.
	Lud16 string

	// Avatar and Banner carry image bytes inline.
	Avatar []byte
	Banner []byte

	Org bool
	Bot bool
}

const (
	// MaxProfileTextLen bounds each text field.
	MaxProfileTextLen = 1024

	// MaxProfileImageLen bounds the inline avatar and banner images.
	MaxProfileImageLen = 256 * 1024

	profileOrgBit = 0x01
	profileBotBit = 0x02
)

// Validate checks structural constraints on the profile.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("record: profile needs a name")
	}
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", p.Name},
		{"display name", p.DisplayName},
		{"about", p.About},
		{"website", p.Website},
		{"lud16", p.Lud16},
	} {
		if len(f.value) > MaxProfileTextLen {
			return fmt.Errorf("record: profile %s is %d bytes, max %d", f.name, len(f.value), MaxProfileTextLen)
		}
	}
	if len(p.Avatar) > MaxProfileImageLen {
		return fmt.Errorf("record: profile avatar is %d bytes, max %d", len(p.Avatar), MaxProfileImageLen)
	}
	if len(p.Banner) > MaxProfileImageLen {
		return fmt.Errorf("record: profile banner is %d bytes, max %d", len(p.Banner), MaxProfileImageLen)
	}
	return nil
}

// Encode produces the canonical payload bytes for the profile.
func (p Profile) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := wire.NewEncoder(1 + 5*2 + len(p.Name) + len(p.DisplayName) + len(p.About) +
		len(p.Website) + len(p.Lud16) + 2*4 + len(p.Avatar) + len(p.Banner))
	var bits uint8
	if p.Org {
		bits |= profileOrgBit
	}
	if p.Bot {
		bits |= profileBotBit
	}
	e.U8(bits)
	e.Blob16([]byte(p.Name))
	e.Blob16([]byte(p.DisplayName))
	e.Blob16([]byte(p.About))
	e.Blob16([]byte(p.Website))
	e.Blob16([]byte(p.Lud16))
	e.Blob32(p.Avatar)
	e.Blob32(p.Banner)
	return e.Bytes(), nil
}

// DecodeProfile parses canonical profile payload bytes.
func DecodeProfile(b []byte) (Profile, error) {
	d := wire.NewDecoder(b)
	bits, err := d.U8("profile bits")
	if err != nil {
		return Profile{}, err
	}
	if bits&^(profileOrgBit|profileBotBit) != 0 {
		return Profile{}, &wire.Error{Code: wire.NonCanonical, Message: fmt.Sprintf("undefined profile bits %#x", bits)}
	}
	var p Profile
	p.Org = bits&profileOrgBit != 0
	p.Bot = bits&profileBotBit != 0

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"name", &p.Name},
		{"display name", &p.DisplayName},
		{"about", &p.About},
		{"website", &p.Website},
		{"lud16", &p.Lud16},
	} {
		v, err := d.Blob16(f.name)
		if err != nil {
			return Profile{}, err
		}
		*f.dst = string(v)
	}
	for _, f := range []struct {
		name string
		dst  *[]byte
	}{
		{"avatar", &p.Avatar},
		{"banner", &p.Banner},
	} {
		v, err := d.Blob32(f.name)
		if err != nil {
			return Profile{}, err
		}
		if len(v) > 0 {
			*f.dst = append([]byte(nil), v...)
		}
	}
	if err := d.Finish(); err != nil {
		return Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// BuildRecord signs the profile into a KindProfile record under
// secret. Profile records are identity-addressed, so a newer record
// from the same author replaces this one at the same address.
func (p Profile) BuildRecord(secret keys.SecretKey) (*Record, error) {
	payload, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return Build(Header{Kind: KindProfile, Timestamp: Now()}, payload, secret)
}

// ProfileFromRecord extracts the profile carried by a KindProfile
// record. Callers are expected to Verify the record first; this only
// checks the kind and the payload encoding.
func ProfileFromRecord(r *Record) (Profile, error) {
	if r.Kind() != KindProfile {
		return Profile{}, invalidHeaderf("record kind %v is not a profile", r.Kind())
	}
	return DecodeProfile(r.Payload())
}
