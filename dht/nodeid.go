package dht

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"

	"github.com/justinmoon/mosaic-core/record"
)

// IDBytes is the width of a DHT node ID / lookup target. Mainline
// routing compares 160-bit identifiers by XOR distance.
const IDBytes = 20

// targetContext domain-separates DHT targets from every other blake3
// use of an address.
const targetContext = "mosaic:dht:v0"

// NodeID identifies a DHT node or lookup target.
type NodeID [IDBytes]byte

// RandomNodeID generates a fresh node identity.
func RandomNodeID() (NodeID, error) {
	var id NodeID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		return NodeID{}, fmt.Errorf("dht: node id: %w", err)
	}
	return id, nil
}

// TargetForAddress maps a record Address into the DHT keyspace by
// truncated blake3, so 32-byte addresses stay comparable to 160-bit
// node IDs.
func TargetForAddress(addr record.Address) NodeID {
	return deriveTarget(addr[:])
}

// TargetForKey maps arbitrary key material (e.g. a public key plus
// salt for mutable items) into the DHT keyspace.
func TargetForKey(material ...[]byte) NodeID {
	var buf bytes.Buffer
	for _, m := range material {
		buf.Write(m)
	}
	return deriveTarget(buf.Bytes())
}

func deriveTarget(input []byte) NodeID {
	h := blake3.New(IDBytes, nil)
	h.Write([]byte(targetContext))
	h.Write([]byte{0})
	h.Write(input)
	var id NodeID
	copy(id[:], h.Sum(nil))
	return id
}

// NodeIDFromBytes packs 20 raw bytes into a NodeID.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != IDBytes {
		return NodeID{}, newError(Malformed, fmt.Sprintf("node id is %d bytes, want %d", len(b), IDBytes))
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// IsZero reports whether the ID is unset.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns an abbreviated form for logs.
func (id NodeID) ShortString() string {
	return hex.EncodeToString(id[:4])
}

// xor returns the XOR metric between two IDs.
func (id NodeID) xor(o NodeID) (d NodeID) {
	for i := range id {
		d[i] = id[i] ^ o[i]
	}
	return d
}

// CloserTo reports whether a is strictly closer to id than b by XOR
// distance.
func (id NodeID) CloserTo(a, b NodeID) bool {
	return bytes.Compare(a.xor(id).Bytes(), b.xor(id).Bytes()) < 0
}

// bucketIndex returns the routing bucket for o relative to id: the
// index of the highest differing bit, or -1 when o == id.
func (id NodeID) bucketIndex(o NodeID) int {
	d := id.xor(o)
	for i, b := range d {
		if b == 0 {
			continue
		}
		bit := 7
		for b>>uint(bit) == 0 {
			bit--
		}
		return (IDBytes-1-i)*8 + bit
	}
	return -1
}

// Bytes returns the raw ID bytes.
func (id NodeID) Bytes() []byte {
	out := make([]byte, IDBytes)
	copy(out, id[:])
	return out
}
