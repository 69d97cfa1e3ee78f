package record

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/justinmoon/mosaic-core/keys"
)

// The JSON form is a presentation-layer adapter over the canonical
// codec. It never participates in signing: import re-derives the
// canonical bytes and re-runs the cryptographic checks, so no JSON
// input can mint a record that bypasses signing.

type jsonTag struct {
	Type  uint16 `json:"type"`
	Value string `json:"value"` // base64
}

type jsonRecord struct {
	Address    string    `json:"address"`
	AuthorKey  string    `json:"author_key"`
	Kind       uint16    `json:"kind"`
	KindName   string    `json:"kind_name"`
	Flags      uint16    `json:"flags"`
	Timestamp  uint64    `json:"timestamp"`
	Expiration uint64    `json:"expiration,omitempty"`
	Tags       []jsonTag `json:"tags"`
	Payload    string    `json:"payload"` // base64
	Signature  string    `json:"signature"`
}

// ExportJSON renders the record for human-facing consumers.
func (r *Record) ExportJSON() ([]byte, error) {
	jr := jsonRecord{
		Address:    r.addr.Printable(),
		AuthorKey:  r.header.Author.Printable(),
		Kind:       uint16(r.header.Kind),
		KindName:   r.header.Kind.String(),
		Flags:      uint16(r.header.Flags),
		Timestamp:  r.header.Timestamp.Millis(),
		Expiration: r.header.Expiration.Millis(),
		Tags:       make([]jsonTag, 0, len(r.header.Tags)),
		Payload:    base64.StdEncoding.EncodeToString(r.payload),
		Signature:  base64.StdEncoding.EncodeToString(r.sig[:]),
	}
	for _, t := range r.header.Tags {
		jr.Tags = append(jr.Tags, jsonTag{
			Type:  uint16(t.Type),
			Value: base64.StdEncoding.EncodeToString(t.Value),
		})
	}
	return json.Marshal(&jr)
}

// ImportJSON parses a JSON record, re-derives its canonical bytes, and
// rejects it unless the canonicality, address, and signature checks all
// pass. The returned record still requires Verify for the expiration
// policy; the cryptographic checks have already run.
func ImportJSON(data []byte) (*Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return nil, fmt.Errorf("record: bad JSON: %w", err)
	}

	author, err := keys.ParsePublicKey(jr.AuthorKey)
	if err != nil {
		return nil, err
	}
	addr, err := ParseAddress(jr.Address)
	if err != nil {
		return nil, err
	}
	ts, err := TimestampFromMillis(jr.Timestamp)
	if err != nil {
		return nil, err
	}
	exp, err := TimestampFromMillis(jr.Expiration)
	if err != nil {
		return nil, err
	}

	h := Header{
		Kind:       Kind(jr.Kind),
		Flags:      Flags(jr.Flags),
		Author:     author,
		Timestamp:  ts,
		Expiration: exp,
	}
	for i, jt := range jr.Tags {
		val, err := base64.StdEncoding.DecodeString(jt.Value)
		if err != nil {
			return nil, fmt.Errorf("record: tag %d value: %w", i, err)
		}
		h.Tags = append(h.Tags, Tag{Type: TagType(jt.Type), Value: val})
	}
	if !h.Kind.Known() {
		return nil, invalidHeaderf("unknown kind %#x", jr.Kind)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	payload, err := base64.StdEncoding.DecodeString(jr.Payload)
	if err != nil {
		return nil, fmt.Errorf("record: payload: %w", err)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(jr.Signature)
	if err != nil {
		return nil, fmt.Errorf("record: signature: %w", err)
	}

	r, err := assemble(h, payload, sigBytes, addr)
	if err != nil {
		return nil, err
	}
	if err := r.verifyCrypto(); err != nil {
		return nil, err
	}
	return r, nil
}
