package record

import "strings"

// Flags carries record-level advisory flags. Unknown bits have no
// canonical encoding and are rejected at decode.
type Flags uint16

const (
	// FlagZstd marks the payload as zstd-compressed.
	FlagZstd Flags = 0x01

	// FlagFromAuthor asks servers to accept the record only from its
	// author (requiring authentication).
	FlagFromAuthor Flags = 0x02

	// FlagToRecipients asks servers to serve the record only to tagged
	// recipients.
	FlagToRecipients Flags = 0x04

	// FlagNoBridge asks bridges not to propagate the record to other
	// networks.
	FlagNoBridge Flags = 0x08

	// FlagEphemeral marks the record as serve-and-forget.
	FlagEphemeral Flags = 0x10

	knownFlags = FlagZstd | FlagFromAuthor | FlagToRecipients | FlagNoBridge | FlagEphemeral
)

// Has reports whether all bits in f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Known reports whether f uses only defined bits.
func (f Flags) Known() bool {
	return f&^knownFlags == 0
}

func (f Flags) String() string {
	var parts []string
	for _, fl := range []struct {
		bit  Flags
		name string
	}{
		{FlagZstd, "ZSTD"},
		{FlagFromAuthor, "FROM_AUTHOR"},
		{FlagToRecipients, "TO_RECIPIENTS"},
		{FlagNoBridge, "NO_BRIDGE"},
		{FlagEphemeral, "EPHEMERAL"},
	} {
		if f.Has(fl.bit) {
			parts = append(parts, fl.name)
		}
	}
	return strings.Join(parts, "|")
}
