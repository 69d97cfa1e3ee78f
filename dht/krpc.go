package dht

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/zeebo/bencode"
)

// KRPC message envelope (BEP-0005). Exactly one of Args/Response/Err is
// populated depending on Y.
type krpcMessage struct {
	TxID     string             `bencode:"t"`
	Y        string             `bencode:"y"` // "q", "r" or "e"
	Q        string             `bencode:"q,omitempty"`
	Args     bencode.RawMessage `bencode:"a,omitempty"`
	Response bencode.RawMessage `bencode:"r,omitempty"`
	Err      []interface{}      `bencode:"e,omitempty"`
}

// Query argument payloads. IDs and targets travel as 20 raw bytes.

type krPingArgs struct {
	ID string `bencode:"id"`
}

type krFindNodeArgs struct {
	ID     string `bencode:"id"`
	Target string `bencode:"target"`
}

type krGetPeersArgs struct {
	ID     string `bencode:"id"`
	Target string `bencode:"info_hash"`
}

type krAnnounceArgs struct {
	ID     string `bencode:"id"`
	Target string `bencode:"info_hash"`
	Port   int64  `bencode:"port"`
	Token  string `bencode:"token"`
}

type krGetArgs struct {
	ID     string `bencode:"id"`
	Target string `bencode:"target"`
}

type krPutArgs struct {
	ID    string `bencode:"id"`
	Key   string `bencode:"k"`
	Salt  string `bencode:"salt,omitempty"`
	Seq   int64  `bencode:"seq"`
	Sig   string `bencode:"sig"`
	Token string `bencode:"token"`
	Value string `bencode:"v"`
}

// krResponse is the union of every response shape the client reads.
// Absent fields decode to zero values.
type krResponse struct {
	ID     string   `bencode:"id"`
	Nodes  string   `bencode:"nodes,omitempty"`
	Token  string   `bencode:"token,omitempty"`
	Values []string `bencode:"values,omitempty"`
	Key    string   `bencode:"k,omitempty"`
	Seq    int64    `bencode:"seq,omitempty"`
	Sig    string   `bencode:"sig,omitempty"`
	Value  string   `bencode:"v,omitempty"`
}

// Contact is a routing-table entry: a node ID and its UDP endpoint.
type Contact struct {
	ID   NodeID
	Addr *net.UDPAddr
}

func (c Contact) String() string {
	return fmt.Sprintf("%s@%s", c.ID.ShortString(), c.Addr)
}

// Endpoint is a peer address resolved for a target.
type Endpoint struct {
	IP   net.IP
	Port int
}

func (e Endpoint) String() string {
	return (&net.UDPAddr{IP: e.IP, Port: e.Port}).String()
}

// UDPAddr converts the endpoint for dialing.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: e.Port}
}

const (
	compactNodeLen = IDBytes + 6
	compactPeerLen = 6
)

// compactNodes encodes contacts in the mainline 26-byte form
// (20-byte ID, 4-byte IPv4, 2-byte big-endian port).
func compactNodes(contacts []Contact) string {
	out := make([]byte, 0, len(contacts)*compactNodeLen)
	for _, c := range contacts {
		ip4 := c.Addr.IP.To4()
		if ip4 == nil {
			continue
		}
		out = append(out, c.ID[:]...)
		out = append(out, ip4...)
		out = binary.BigEndian.AppendUint16(out, uint16(c.Addr.Port))
	}
	return string(out)
}

// parseCompactNodes decodes a compact node list, skipping nothing: a
// list whose length is not a multiple of the entry size is malformed.
func parseCompactNodes(s string) ([]Contact, error) {
	b := []byte(s)
	if len(b)%compactNodeLen != 0 {
		return nil, newError(Malformed, fmt.Sprintf("compact node list of %d bytes", len(b)))
	}
	out := make([]Contact, 0, len(b)/compactNodeLen)
	for off := 0; off < len(b); off += compactNodeLen {
		var id NodeID
		copy(id[:], b[off:])
		ip := net.IPv4(b[off+IDBytes], b[off+IDBytes+1], b[off+IDBytes+2], b[off+IDBytes+3])
		port := int(binary.BigEndian.Uint16(b[off+IDBytes+4:]))
		if port == 0 {
			continue
		}
		out = append(out, Contact{ID: id, Addr: &net.UDPAddr{IP: ip, Port: port}})
	}
	return out, nil
}

// compactPeer encodes one endpoint in the 6-byte peer form.
func compactPeer(e Endpoint) (string, bool) {
	ip4 := e.IP.To4()
	if ip4 == nil {
		return "", false
	}
	b := make([]byte, 0, compactPeerLen)
	b = append(b, ip4...)
	b = binary.BigEndian.AppendUint16(b, uint16(e.Port))
	return string(b), true
}

func parseCompactPeer(s string) (Endpoint, error) {
	if len(s) != compactPeerLen {
		return Endpoint{}, newError(Malformed, fmt.Sprintf("compact peer of %d bytes", len(s)))
	}
	b := []byte(s)
	return Endpoint{
		IP:   net.IPv4(b[0], b[1], b[2], b[3]),
		Port: int(binary.BigEndian.Uint16(b[4:])),
	}, nil
}

func marshalQuery(txID string, method string, args interface{}) ([]byte, error) {
	raw, err := bencode.EncodeBytes(args)
	if err != nil {
		return nil, wrapError(Malformed, "encode query args", err)
	}
	return bencode.EncodeBytes(&krpcMessage{
		TxID: txID,
		Y:    "q",
		Q:    method,
		Args: raw,
	})
}

func marshalResponse(txID string, res interface{}) ([]byte, error) {
	raw, err := bencode.EncodeBytes(res)
	if err != nil {
		return nil, wrapError(Malformed, "encode response", err)
	}
	return bencode.EncodeBytes(&krpcMessage{
		TxID:     txID,
		Y:        "r",
		Response: raw,
	})
}

func marshalError(txID string, code int64, msg string) ([]byte, error) {
	return bencode.EncodeBytes(&krpcMessage{
		TxID: txID,
		Y:    "e",
		Err:  []interface{}{code, msg},
	})
}
