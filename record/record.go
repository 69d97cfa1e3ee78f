package record

import (
	"fmt"

	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/wire"
)

// Version is the wire format version this package produces.
const Version = 0

// MaxPayloadLen bounds a record payload.
const MaxPayloadLen = 1 << 20

// Header is the structured metadata signed along with the payload.
//
// The canonical header encoding is, in order: version (u8), kind (u16),
// flags (u16), author public key (32 raw bytes), timestamp (u48),
// expiration (u48, zero means none), tag list (u16 count, then per tag
// u16 type and u16-length-prefixed value), payload length (u32).
type Header struct {
	Kind   Kind
	Flags  Flags
	Author keys.PublicKey

	// Timestamp is the creation time.
	Timestamp Timestamp

	// Expiration is advisory; zero means the record never expires.
	Expiration Timestamp

	Tags TagSet
}

func (h Header) validate() error {
	if !h.Kind.Known() {
		return invalidHeaderf("unknown kind %#x", uint16(h.Kind))
	}
	if !h.Flags.Known() {
		return invalidHeaderf("undefined flag bits %#x", uint16(h.Flags))
	}
	if h.Timestamp > MaxTimestamp || h.Expiration > MaxTimestamp {
		return invalidHeaderf("timestamp out of range")
	}
	if h.Expiration != 0 && h.Expiration < h.Timestamp {
		return invalidHeaderf("expiration precedes creation")
	}
	if err := h.Tags.Validate(); err != nil {
		return invalidHeaderf("%v", err)
	}
	return nil
}

func (h Header) encode(e *wire.Encoder, payloadLen int) {
	e.U8(Version)
	e.U16(uint16(h.Kind))
	e.U16(uint16(h.Flags))
	e.Raw(h.Author[:])
	e.U48(uint64(h.Timestamp))
	e.U48(uint64(h.Expiration))
	e.U16(uint16(len(h.Tags)))
	for _, t := range h.Tags {
		e.U16(uint16(t.Type))
		e.Blob16(t.Value)
	}
	e.U32(uint32(payloadLen))
}

// decodeHeader parses the canonical header, returning the declared
// payload length. All deviations from canonical form are rejected.
func decodeHeader(d *wire.Decoder) (Header, int, error) {
	var h Header

	version, err := d.U8("version")
	if err != nil {
		return h, 0, err
	}
	if version != Version {
		return h, 0, &wire.Error{Code: wire.UnknownVariant, Message: fmt.Sprintf("version %d", version)}
	}

	kind, err := d.U16("kind")
	if err != nil {
		return h, 0, err
	}
	h.Kind = Kind(kind)
	if !h.Kind.Known() {
		return h, 0, &wire.Error{Code: wire.UnknownVariant, Message: fmt.Sprintf("kind %#x", kind)}
	}

	flags, err := d.U16("flags")
	if err != nil {
		return h, 0, err
	}
	h.Flags = Flags(flags)
	if !h.Flags.Known() {
		return h, 0, &wire.Error{Code: wire.NonCanonical, Message: fmt.Sprintf("undefined flag bits %#x", flags)}
	}

	author, err := d.Raw(keys.PublicKeySize, "author key")
	if err != nil {
		return h, 0, err
	}
	copy(h.Author[:], author)

	ts, err := d.U48("timestamp")
	if err != nil {
		return h, 0, err
	}
	h.Timestamp = Timestamp(ts)

	exp, err := d.U48("expiration")
	if err != nil {
		return h, 0, err
	}
	h.Expiration = Timestamp(exp)
	if h.Expiration != 0 && h.Expiration < h.Timestamp {
		return h, 0, &wire.Error{Code: wire.NonCanonical, Message: "expiration precedes creation"}
	}

	tagCount, err := d.U16("tag count")
	if err != nil {
		return h, 0, err
	}
	if tagCount > MaxTags {
		return h, 0, &wire.Error{Code: wire.NonCanonical, Message: fmt.Sprintf("%d tags exceeds limit", tagCount)}
	}
	if tagCount > 0 {
		h.Tags = make(TagSet, 0, tagCount)
	}
	for i := 0; i < int(tagCount); i++ {
		tt, err := d.U16("tag type")
		if err != nil {
			return h, 0, err
		}
		val, err := d.Blob16("tag value")
		if err != nil {
			return h, 0, err
		}
		if len(val) > MaxTagValueLen {
			return h, 0, &wire.Error{Code: wire.NonCanonical, Message: "tag value exceeds limit"}
		}
		h.Tags = append(h.Tags, Tag{Type: TagType(tt), Value: val})
	}

	payloadLen, err := d.U32("payload length")
	if err != nil {
		return h, 0, err
	}
	if payloadLen > MaxPayloadLen {
		return h, 0, &wire.Error{Code: wire.NonCanonical, Message: "payload exceeds limit"}
	}
	return h, int(payloadLen), nil
}

// Record is the signed unit of exchange. Immutable after construction;
// every accessor returns values that cannot mutate the record.
type Record struct {
	header  Header
	payload []byte
	sig     keys.Signature

	// addr is the claimed address: derived at Build/Decode time, or
	// supplied externally (DecodeExpected, JSON import). Verify checks
	// it against the derivation mandated for the kind.
	addr Address

	// encoded is the full canonical bytes: header, payload, signature.
	encoded []byte

	verified bool
}

// Build canonically encodes the header and payload, signs them with
// secret, derives the address, and assembles an immutable Record.
//
// If the header's Author is zero it is filled from secret; a non-zero
// Author that does not match secret is an InvalidHeader error.
func Build(h Header, payload []byte, secret keys.SecretKey) (*Record, error) {
	if secret.IsZero() {
		return nil, keys.ErrInvalidKey
	}
	var zeroAuthor keys.PublicKey
	pub := secret.Public()
	if h.Author == zeroAuthor {
		h.Author = pub
	} else if h.Author != pub {
		return nil, invalidHeaderf("author key does not match signing key")
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadLen {
		return nil, invalidHeaderf("payload is %d bytes, max %d", len(payload), MaxPayloadLen)
	}
	h.Tags = h.Tags.clone()

	e := wire.NewEncoder(headerEncodedLen(h) + len(payload) + keys.SignatureSize)
	h.encode(e, len(payload))
	e.Raw(payload)
	signed := e.Bytes()

	sig, err := secret.Sign(signed)
	if err != nil {
		return nil, err
	}
	e.Raw(sig[:])

	r := &Record{
		header:   h,
		payload:  append([]byte(nil), payload...),
		sig:      sig,
		encoded:  e.Bytes(),
		verified: true, // sign-on-create: the author trusts its own record
	}
	r.addr = r.deriveAddress()
	return r, nil
}

// Decode strictly parses canonical record bytes. The returned record
// is unverified; its address is derived from the bytes themselves.
// Call Verify before trusting it.
func Decode(b []byte) (*Record, error) {
	return decode(b, nil)
}

// DecodeExpected is Decode for bytes fetched by address (e.g. resolved
// through the DHT): the claimed address is recorded so that Verify can
// check the address binding against what was asked for.
func DecodeExpected(b []byte, claimed Address) (*Record, error) {
	return decode(b, &claimed)
}

func decode(b []byte, claimed *Address) (*Record, error) {
	d := wire.NewDecoder(b)
	h, payloadLen, err := decodeHeader(d)
	if err != nil {
		return nil, err
	}
	payload, err := d.Raw(payloadLen, "payload")
	if err != nil {
		return nil, err
	}
	sigBytes, err := d.Raw(keys.SignatureSize, "signature")
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}

	// Decoded tag values alias b; detach them so reuse of the caller's
	// buffer cannot reach into the record.
	h.Tags = h.Tags.clone()

	r := &Record{
		header:  h,
		payload: append([]byte(nil), payload...),
		encoded: append([]byte(nil), b...),
	}
	copy(r.sig[:], sigBytes)
	if claimed != nil {
		r.addr = *claimed
	} else {
		r.addr = r.deriveAddress()
	}
	return r, nil
}

// assemble reconstructs a Record from decoded parts and a claimed
// address, re-deriving the canonical encoding. Used by presentation
// adapters; callers must run the cryptographic checks afterwards.
func assemble(h Header, payload []byte, sigBytes []byte, claimed Address) (*Record, error) {
	if len(sigBytes) != keys.SignatureSize {
		return nil, invalidHeaderf("signature is %d bytes, want %d", len(sigBytes), keys.SignatureSize)
	}
	if len(payload) > MaxPayloadLen {
		return nil, invalidHeaderf("payload is %d bytes, max %d", len(payload), MaxPayloadLen)
	}
	h.Tags = h.Tags.clone()

	e := wire.NewEncoder(headerEncodedLen(h) + len(payload) + keys.SignatureSize)
	h.encode(e, len(payload))
	e.Raw(payload)
	e.Raw(sigBytes)

	r := &Record{
		header:  h,
		payload: append([]byte(nil), payload...),
		encoded: e.Bytes(),
		addr:    claimed,
	}
	copy(r.sig[:], sigBytes)
	return r, nil
}

// deriveAddress computes the address mandated for the record's kind.
func (r *Record) deriveAddress() Address {
	if r.header.Kind.Addressing() == IdentityAddressed {
		return IdentityAddress(r.header.Kind, r.header.Author)
	}
	return ContentAddress(r.signedBytes())
}

// signedBytes returns the canonical header plus payload slice the
// signature covers.
func (r *Record) signedBytes() []byte {
	return r.encoded[:len(r.encoded)-keys.SignatureSize]
}

func headerEncodedLen(h Header) int {
	n := 1 + 2 + 2 + keys.PublicKeySize + 6 + 6 + 2 + 4
	for _, t := range h.Tags {
		n += 2 + 2 + len(t.Value)
	}
	return n
}

// Kind returns the record kind.
func (r *Record) Kind() Kind { return r.header.Kind }

// Flags returns the record flags.
func (r *Record) Flags() Flags { return r.header.Flags }

// Author returns the author's public key.
func (r *Record) Author() keys.PublicKey { return r.header.Author }

// Timestamp returns the creation time.
func (r *Record) Timestamp() Timestamp { return r.header.Timestamp }

// Expiration returns the advisory expiration and whether one is set.
func (r *Record) Expiration() (Timestamp, bool) {
	return r.header.Expiration, r.header.Expiration != 0
}

// Tags returns a copy of the ordered tag list.
func (r *Record) Tags() TagSet { return r.header.Tags.clone() }

// Payload returns a copy of the payload bytes.
func (r *Record) Payload() []byte {
	return append([]byte(nil), r.payload...)
}

// Signature returns the detached signature.
func (r *Record) Signature() keys.Signature { return r.sig }

// Address returns the record's claimed address.
func (r *Record) Address() Address { return r.addr }

// Bytes returns a copy of the full canonical encoding
// (header, payload, signature).
func (r *Record) Bytes() []byte {
	return append([]byte(nil), r.encoded...)
}

// Verified reports whether the record has passed Verify (or was built
// locally by its author).
func (r *Record) Verified() bool { return r.verified }
