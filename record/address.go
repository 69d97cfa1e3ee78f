package record

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"

	"github.com/justinmoon/mosaic-core/keys"
)

// AddressSize is the fixed width of an Address.
const AddressSize = 32

// Domain-separation prefixes keep identity and content addresses in
// disjoint spaces even for adversarially chosen input.
const (
	contentAddrContext  = "mosaic:addr:content:v0"
	identityAddrContext = "mosaic:addr:identity:v0"
)

// AddressPrefix opens every printable address.
const AddressPrefix = "moref0"

// Address is a fixed-width locator derived one-way from either a
// record's signed bytes (content address) or the author's public key
// and kind (identity address). Addresses are immutable once derived
// and have no reverse operation.
type Address [AddressSize]byte

// ContentAddress derives the address of a content-addressed record
// from its signed bytes (canonical header plus payload).
func ContentAddress(signedBytes []byte) Address {
	return deriveAddress(contentAddrContext, signedBytes)
}

// IdentityAddress derives the address of an identity-addressed record
// from its kind and author. The kind participates so that two
// identity-addressed kinds by one author never collide.
func IdentityAddress(kind Kind, author keys.PublicKey) Address {
	var input [2 + keys.PublicKeySize]byte
	binary.LittleEndian.PutUint16(input[:2], uint16(kind))
	copy(input[2:], author[:])
	return deriveAddress(identityAddrContext, input[:])
}

func deriveAddress(context string, input []byte) Address {
	h := blake3.New(AddressSize, nil)
	h.Write([]byte(context))
	h.Write([]byte{0})
	h.Write(input)
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// AddressFromBytes packs 32 raw bytes into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("record: address is %d bytes, want %d", len(b), AddressSize)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Bytes returns the raw fixed-width bytes with no framing.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// Printable returns the "moref0" form of the address.
func (a Address) Printable() string {
	return AddressPrefix + base58.Encode(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Printable()
}

// ParseAddress imports an Address from its printable form.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, AddressPrefix) {
		return Address{}, fmt.Errorf("record: not a printable address")
	}
	b, err := base58.Decode(s[len(AddressPrefix):])
	if err != nil {
		return Address{}, fmt.Errorf("record: bad printable address: %w", err)
	}
	return AddressFromBytes(b)
}
