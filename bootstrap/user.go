package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/justinmoon/mosaic-core/dht"
	"github.com/justinmoon/mosaic-core/keys"
)

// UserSalt distinguishes user bootstrap items in the DHT keyspace.
const UserSalt = "mub25"

const userPrefix = "U\n"

// ServerUsage says which of a user's traffic a server carries.
type ServerUsage uint8

const (
	// UsageOutbox marks the server that hosts the user's own records.
	UsageOutbox ServerUsage = 1 << 0
	// UsageInbox marks the server that accepts records addressed to
	// the user.
	UsageInbox ServerUsage = 1 << 1
	// UsageEncryption marks the server holding material for encrypted
	// delivery.
	UsageEncryption ServerUsage = 1 << 2

	usageMask = UsageOutbox | UsageInbox | UsageEncryption

	// Usage travels as one printable ASCII character: the three flag
	// bits OR'd into the digit range.
	usagePrintableBase = 0x30
)

// Has reports whether u carries every flag in mask.
func (u ServerUsage) Has(mask ServerUsage) bool { return u&mask == mask }

func (u ServerUsage) printableByte() byte {
	return byte(u&usageMask) | usagePrintableBase
}

func usageFromPrintable(b byte) ServerUsage {
	return ServerUsage(b) & usageMask
}

func (u ServerUsage) String() string {
	parts := make([]string, 0, 3)
	if u.Has(UsageOutbox) {
		parts = append(parts, "outbox")
	}
	if u.Has(UsageInbox) {
		parts = append(parts, "inbox")
	}
	if u.Has(UsageEncryption) {
		parts = append(parts, "encryption")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// UserEntry pairs one server with the usages it serves for the user.
type UserEntry struct {
	Usage  ServerUsage
	Server keys.PublicKey
}

// UserBootstrap is a user's published server list plus the record's
// sequence number. A fresh record starts at sequence 0 and is bumped
// on every publish.
type UserBootstrap struct {
	entries []UserEntry
	seq     int64
}

// NewUserBootstrap returns an empty, never-published record.
func NewUserBootstrap() *UserBootstrap {
	return &UserBootstrap{}
}

// UserBootstrapFromEntries builds a record at the given sequence.
func UserBootstrapFromEntries(entries []UserEntry, seq int64) *UserBootstrap {
	return &UserBootstrap{entries: append([]UserEntry(nil), entries...), seq: seq}
}

// Entries returns the server list in publish order.
func (ub *UserBootstrap) Entries() []UserEntry {
	return append([]UserEntry(nil), ub.entries...)
}

// Seq returns the record's sequence number.
func (ub *UserBootstrap) Seq() int64 { return ub.seq }

// Append adds a server with its usages.
func (ub *UserBootstrap) Append(usage ServerUsage, server keys.PublicKey) {
	ub.entries = append(ub.entries, UserEntry{Usage: usage, Server: server})
}

// Remove drops the entry at index i; out-of-range is a no-op.
func (ub *UserBootstrap) Remove(i int) {
	if i < 0 || i >= len(ub.entries) {
		return
	}
	ub.entries = append(ub.entries[:i], ub.entries[i+1:]...)
}

// Clear drops every entry.
func (ub *UserBootstrap) Clear() { ub.entries = nil }

// EncodeValue renders the DHT value string: "U" followed by one
// "<usage char> <printable server key>" per line.
func (ub *UserBootstrap) EncodeValue() string {
	var b strings.Builder
	b.WriteByte('U')
	for _, e := range ub.entries {
		b.WriteByte('\n')
		b.WriteByte(e.Usage.printableByte())
		b.WriteByte(' ')
		b.WriteString(e.Server.Printable())
	}
	return b.String()
}

// DecodeUserValue parses a DHT value string fetched at seq.
func DecodeUserValue(s string, seq int64) (*UserBootstrap, error) {
	if !strings.HasPrefix(s, userPrefix) || len(s) < 4 {
		return nil, newError(BadValue, "user bootstrap must start with \"U\" and one entry")
	}
	ub := &UserBootstrap{seq: seq}
	for i, line := range strings.Split(s[len(userPrefix):], "\n") {
		if len(line) < 3 || line[1] != ' ' {
			return nil, newError(BadValue, fmt.Sprintf("user bootstrap entry %d malformed", i))
		}
		server, err := keys.ParsePublicKey(line[2:])
		if err != nil {
			return nil, wrapError(BadValue, fmt.Sprintf("user bootstrap entry %d key", i), err)
		}
		ub.entries = append(ub.entries, UserEntry{
			Usage:  usageFromPrintable(line[0]),
			Server: server,
		})
	}
	return ub, nil
}

// Publish signs the record and stores it in the DHT under the user's
// key, bumping the sequence number first.
func (ub *UserBootstrap) Publish(ctx context.Context, d Resolver, secret keys.SecretKey) error {
	ub.seq++
	item, err := dht.SignMutable(secret, []byte(UserSalt), ub.seq, []byte(ub.EncodeValue()))
	if err != nil {
		ub.seq--
		return err
	}
	if err := d.PutMutable(ctx, item); err != nil {
		ub.seq--
		return err
	}
	return nil
}

// ResolveUser fetches and parses the user bootstrap record for a key.
// A nil record with nil error means the user has published nothing.
func ResolveUser(ctx context.Context, d Resolver, user keys.PublicKey) (*UserBootstrap, error) {
	item, err := d.GetMutable(ctx, user, []byte(UserSalt))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return DecodeUserValue(string(item.Value), item.Seq)
}
