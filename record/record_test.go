package record

import (
	"bytes"
	"testing"
	"time"

	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/wire"
)

func testKey(t *testing.T, seedByte byte) keys.SecretKey {
	t.Helper()
	seed := bytes.Repeat([]byte{seedByte}, keys.SecretKeySize)
	s, err := keys.SecretKeyFromBytes(seed)
	if err != nil {
		t.Fatalf("SecretKeyFromBytes: %v", err)
	}
	return s
}

func buildNote(t *testing.T, k keys.SecretKey, payload string) *Record {
	t.Helper()
	r, err := Build(Header{
		Kind:      KindNote,
		Timestamp: 1_700_000_000_000,
		Tags: TagSet{
			{Type: TagPublicKey, Value: k.Public().Bytes()},
		},
	}, []byte(payload), k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return r
}

func TestBuildDecodeRoundTrip(t *testing.T) {
	k := testKey(t, 1)
	r := buildNote(t, k, "hello")

	dec, err := Decode(r.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Kind() != KindNote {
		t.Fatalf("Kind = %v", dec.Kind())
	}
	if dec.Author() != k.Public() {
		t.Fatal("author mismatch")
	}
	if string(dec.Payload()) != "hello" {
		t.Fatalf("payload = %q", dec.Payload())
	}
	if dec.Timestamp() != 1_700_000_000_000 {
		t.Fatalf("timestamp = %v", dec.Timestamp())
	}
	if _, ok := dec.Expiration(); ok {
		t.Fatal("unexpected expiration")
	}
	if dec.Address() != r.Address() {
		t.Fatal("address mismatch after round trip")
	}
	if !bytes.Equal(dec.Bytes(), r.Bytes()) {
		t.Fatal("canonical bytes differ after round trip")
	}
	if dec.Verified() {
		t.Fatal("freshly decoded record claims verified")
	}
}

func TestEncodeDecodeBijective(t *testing.T) {
	// encode(decode(b)) == b for canonical b.
	k := testKey(t, 2)
	r := buildNote(t, k, "bijective")
	b := r.Bytes()

	dec, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec.Bytes(), b) {
		t.Fatal("re-encoding does not reproduce input bytes")
	}
}

func TestDecodeDetachesFromInputBuffer(t *testing.T) {
	k := testKey(t, 12)
	r := buildNote(t, k, "detach")

	buf := append([]byte(nil), r.Bytes()...)
	dec, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range buf {
		buf[i] ^= 0xFF
	}

	if err := dec.Verify(time.UnixMilli(1_700_000_000_001)); err != nil {
		t.Fatalf("Verify after input buffer reuse: %v", err)
	}
	tags := dec.Tags()
	if !bytes.Equal(tags[0].Value, k.Public().Bytes()) {
		t.Fatal("tag value changed with the input buffer")
	}
}

func TestDecodeTruncated(t *testing.T) {
	k := testKey(t, 3)
	b := buildNote(t, k, "trunc").Bytes()

	for _, cut := range []int{0, 1, 5, len(b) / 2, len(b) - 1} {
		if _, err := Decode(b[:cut]); !wire.IsCode(err, wire.Truncated) {
			t.Fatalf("Decode(cut %d) = %v, want Truncated", cut, err)
		}
	}
}

func TestDecodeTrailingGarbage(t *testing.T) {
	k := testKey(t, 4)
	b := buildNote(t, k, "trail").Bytes()

	_, err := Decode(append(b, 0x00))
	if !wire.IsCode(err, wire.NonCanonical) {
		t.Fatalf("Decode = %v, want NonCanonical", err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	k := testKey(t, 5)
	b := buildNote(t, k, "kind").Bytes()
	// Kind is the u16 right after the version byte.
	b[1] = 0xFF
	b[2] = 0xFF

	_, err := Decode(b)
	if !wire.IsCode(err, wire.UnknownVariant) {
		t.Fatalf("Decode = %v, want UnknownVariant", err)
	}
}

func TestDecodeUnknownVersion(t *testing.T) {
	k := testKey(t, 6)
	b := buildNote(t, k, "ver").Bytes()
	b[0] = 9

	_, err := Decode(b)
	if !wire.IsCode(err, wire.UnknownVariant) {
		t.Fatalf("Decode = %v, want UnknownVariant", err)
	}
}

func TestDecodeUndefinedFlagBits(t *testing.T) {
	k := testKey(t, 7)
	b := buildNote(t, k, "flags").Bytes()
	// Flags are the u16 at offset 3.
	b[4] = 0x80

	_, err := Decode(b)
	if !wire.IsCode(err, wire.NonCanonical) {
		t.Fatalf("Decode = %v, want NonCanonical", err)
	}
}

func TestBuildRejectsBadHeaders(t *testing.T) {
	k := testKey(t, 8)
	cases := []struct {
		name string
		h    Header
	}{
		{"unknown kind", Header{Kind: 0x999, Timestamp: 1}},
		{"undefined flags", Header{Kind: KindNote, Flags: 0x8000, Timestamp: 1}},
		{"expiration before creation", Header{Kind: KindNote, Timestamp: 100, Expiration: 50}},
		{"too many tags", Header{Kind: KindNote, Timestamp: 1, Tags: make(TagSet, MaxTags+1)}},
		{"oversized tag value", Header{Kind: KindNote, Timestamp: 1,
			Tags: TagSet{{Type: TagPublicKey, Value: make([]byte, MaxTagValueLen+1)}}}},
	}
	for _, c := range cases {
		_, err := Build(c.h, nil, k)
		if err == nil {
			t.Fatalf("%s: Build succeeded", c.name)
		}
	}
}

func TestBuildAuthorMismatch(t *testing.T) {
	k1 := testKey(t, 9)
	k2 := testKey(t, 10)
	_, err := Build(Header{
		Kind:      KindNote,
		Author:    k2.Public(),
		Timestamp: 1,
	}, nil, k1)
	if err == nil {
		t.Fatal("Build accepted a header authored by a different key")
	}
}

func TestIdentityVsContentAddressing(t *testing.T) {
	k := testKey(t, 11)

	// Two profiles by the same author share an address.
	p1, err := Build(Header{Kind: KindProfile, Timestamp: 1000}, []byte("v1"), k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p2, err := Build(Header{Kind: KindProfile, Timestamp: 2000}, []byte("v2"), k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p1.Address() != p2.Address() {
		t.Fatal("identity-addressed records by one author have different addresses")
	}

	// Two notes with different payloads never share an address.
	n1 := buildNote(t, k, "a")
	n2 := buildNote(t, k, "b")
	if n1.Address() == n2.Address() {
		t.Fatal("content-addressed records with different payloads share an address")
	}

	// Identity addresses never collide across kinds.
	ks, err := Build(Header{Kind: KindKeySchedule, Timestamp: 1000}, nil, k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ks.Address() == p1.Address() {
		t.Fatal("KeySchedule and Profile addresses collide for one author")
	}
}

func TestTagOrderIsSignificant(t *testing.T) {
	k := testKey(t, 12)
	h1 := Header{Kind: KindNote, Timestamp: 1, Tags: TagSet{
		{Type: TagRootAddr, Value: []byte("x")},
		{Type: TagReplyToAddr, Value: []byte("y")},
	}}
	h2 := Header{Kind: KindNote, Timestamp: 1, Tags: TagSet{
		{Type: TagReplyToAddr, Value: []byte("y")},
		{Type: TagRootAddr, Value: []byte("x")},
	}}
	r1, err := Build(h1, nil, k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r2, err := Build(h2, nil, k)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bytes.Equal(r1.Bytes(), r2.Bytes()) {
		t.Fatal("reordered tags encoded identically")
	}
	if r1.Address() == r2.Address() {
		t.Fatal("reordered tags share a content address")
	}
}

func TestAddressPrintableRoundTrip(t *testing.T) {
	k := testKey(t, 13)
	addr := buildNote(t, k, "addr").Address()

	p := addr.Printable()
	got, err := ParseAddress(p)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got != addr {
		t.Fatal("printable address round trip mismatch")
	}
	if _, err := ParseAddress("moref0!!!"); err == nil {
		t.Fatal("ParseAddress accepted garbage")
	}
}
