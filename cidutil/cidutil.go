// Package cidutil bridges Mosaic identifiers to IPFS-compatible CIDs
// for interop with CID-native tooling. The CID form is presentation
// only; it never participates in signing or address derivation.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// digestLen matches the Mosaic address width.
const digestLen = 32

// CIDv1RawBlake3 returns the CIDv1 string (raw multicodec, blake3-256
// multihash) for canonical record bytes.
func CIDv1RawBlake3(data []byte) string {
	c, err := CIDv1RawBlake3CID(data)
	if err != nil {
		// multihash.Sum only errors for unsupported parameters; BLAKE3
		// with a 32-byte length is supported, so this is unreachable.
		return ""
	}
	return c.String()
}

// CIDv1RawBlake3CID returns the CIDv1 (raw + blake3-256) derived from
// data.
func CIDv1RawBlake3CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.BLAKE3, digestLen)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
