package bootstrap

import (
	"context"
	"net/url"
	"strings"

	"github.com/justinmoon/mosaic-core/dht"
	"github.com/justinmoon/mosaic-core/keys"
)

// ServerSalt distinguishes server bootstrap items in the DHT keyspace.
const ServerSalt = "msb24"

// serverPrefix opens every encoded server bootstrap value.
const serverPrefix = "S\n"

// Resolver is the slice of the DHT client these records need. The
// concrete *dht.Client satisfies it.
type Resolver interface {
	GetMutable(ctx context.Context, key keys.PublicKey, salt []byte) (*dht.MutableItem, error)
	PutMutable(ctx context.Context, item dht.MutableItem) error
}

// ServerBootstrap is a server's published transport URLs, in the
// order clients should try them, plus the record's sequence number.
type ServerBootstrap struct {
	urls []*url.URL
	seq  int64
}

// NewServerBootstrap returns an empty record at sequence 1.
func NewServerBootstrap() *ServerBootstrap {
	return &ServerBootstrap{seq: 1}
}

// ServerBootstrapFromURLs builds a record from raw URLs. Each URL is
// normalized; paths, queries and fragments are dropped.
func ServerBootstrapFromURLs(raw []string, seq int64) (*ServerBootstrap, error) {
	sb := &ServerBootstrap{seq: seq}
	for _, r := range raw {
		if err := sb.Append(r); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// URLs returns the transport URLs in publish order.
func (sb *ServerBootstrap) URLs() []*url.URL {
	out := make([]*url.URL, len(sb.urls))
	for i, u := range sb.urls {
		clone := *u
		out[i] = &clone
	}
	return out
}

// Seq returns the record's sequence number.
func (sb *ServerBootstrap) Seq() int64 { return sb.seq }

// Append normalizes and adds one transport URL.
func (sb *ServerBootstrap) Append(raw string) error {
	u, err := cleanServerURL(raw)
	if err != nil {
		return err
	}
	sb.urls = append(sb.urls, u)
	return nil
}

// Remove drops the URL at index i; out-of-range is a no-op.
func (sb *ServerBootstrap) Remove(i int) {
	if i < 0 || i >= len(sb.urls) {
		return
	}
	sb.urls = append(sb.urls[:i], sb.urls[i+1:]...)
}

// Clear drops every URL.
func (sb *ServerBootstrap) Clear() { sb.urls = nil }

// EncodeValue renders the DHT value string: "S" followed by one URL
// per line, no trailing slashes.
func (sb *ServerBootstrap) EncodeValue() string {
	var b strings.Builder
	b.WriteByte('S')
	for _, u := range sb.urls {
		b.WriteByte('\n')
		b.WriteString(strings.TrimSuffix(u.String(), "/"))
	}
	return b.String()
}

// DecodeServerValue parses a DHT value string fetched at seq.
func DecodeServerValue(s string, seq int64) (*ServerBootstrap, error) {
	if !strings.HasPrefix(s, serverPrefix) || len(s) < 4 {
		return nil, newError(BadValue, "server bootstrap must start with \"S\" and one URL")
	}
	sb := &ServerBootstrap{seq: seq}
	for _, line := range strings.Split(s[len(serverPrefix):], "\n") {
		if err := sb.Append(line); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// Publish signs the record and stores it in the DHT under the
// publisher's key, bumping the sequence number first.
func (sb *ServerBootstrap) Publish(ctx context.Context, d Resolver, secret keys.SecretKey) error {
	sb.seq++
	item, err := dht.SignMutable(secret, []byte(ServerSalt), sb.seq, []byte(sb.EncodeValue()))
	if err != nil {
		sb.seq--
		return err
	}
	if err := d.PutMutable(ctx, item); err != nil {
		sb.seq--
		return err
	}
	return nil
}

// ResolveServer fetches and parses the server bootstrap record for a
// key. A nil record with nil error means the server has published
// nothing.
func ResolveServer(ctx context.Context, d Resolver, server keys.PublicKey) (*ServerBootstrap, error) {
	item, err := d.GetMutable(ctx, server, []byte(ServerSalt))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	return DecodeServerValue(string(item.Value), item.Seq)
}

// cleanServerURL enforces the published-URL shape: a wss or https
// scheme and a host, nothing else.
func cleanServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, wrapError(BadValue, "unparsable server URL", err)
	}
	switch u.Scheme {
	case "wss", "https":
	case "":
		return nil, newError(BadScheme, "server URL has no scheme: "+raw)
	default:
		return nil, newError(BadScheme, "server URL scheme must be wss or https, got "+u.Scheme)
	}
	if u.Host == "" {
		return nil, newError(BadValue, "server URL has no host: "+raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}
