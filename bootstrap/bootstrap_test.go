package bootstrap

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/justinmoon/mosaic-core/dht"
	"github.com/justinmoon/mosaic-core/keys"
)

func testSecret(t *testing.T, seed byte) keys.SecretKey {
	t.Helper()
	s, err := keys.Generate(bytes.NewReader(bytes.Repeat([]byte{seed}, 64)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return s
}

// fakeDHT stores mutable items in memory with the network's
// highest-seq-wins rule, standing in for a live swarm.
type fakeDHT struct {
	mu    sync.Mutex
	items map[string]dht.MutableItem
}

func newFakeDHT() *fakeDHT {
	return &fakeDHT{items: make(map[string]dht.MutableItem)}
}

func (f *fakeDHT) key(k keys.PublicKey, salt []byte) string {
	return string(k[:]) + "|" + string(salt)
}

func (f *fakeDHT) PutMutable(_ context.Context, item dht.MutableItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(item.Key, item.Salt)
	if cur, ok := f.items[k]; ok && cur.Seq >= item.Seq {
		return nil
	}
	f.items[k] = item
	return nil
}

func (f *fakeDHT) GetMutable(_ context.Context, key keys.PublicKey, salt []byte) (*dht.MutableItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[f.key(key, salt)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func TestServerValueRoundtrip(t *testing.T) {
	const value = "S\nwss://test.example\nhttps://192.168.99.99"
	sb, err := DecodeServerValue(value, 1)
	if err != nil {
		t.Fatalf("DecodeServerValue: %v", err)
	}
	if got := sb.EncodeValue(); got != value {
		t.Fatalf("EncodeValue = %q, want %q", got, value)
	}
	if len(sb.URLs()) != 2 {
		t.Fatalf("decoded %d URLs, want 2", len(sb.URLs()))
	}
}

func TestServerURLNormalization(t *testing.T) {
	sb := NewServerBootstrap()
	if err := sb.Append("wss://relay.example/sub/path?x=1#frag"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := sb.EncodeValue(); got != "S\nwss://relay.example" {
		t.Fatalf("EncodeValue = %q, path/query/fragment should be stripped", got)
	}
}

func TestServerValueRejections(t *testing.T) {
	cases := []struct {
		name  string
		value string
		code  Code
	}{
		{"wrong prefix", "X\nwss://a.example", BadValue},
		{"no entries", "S", BadValue},
		{"bare prefix", "S\n", BadValue},
		{"ftp scheme", "S\nftp://a.example", BadScheme},
		{"schemeless", "S\na.example", BadScheme},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeServerValue(tc.value, 1); !IsCode(err, tc.code) {
				t.Fatalf("DecodeServerValue(%q) = %v, want %v", tc.value, err, tc.code)
			}
		})
	}
}

func TestServerPublishResolve(t *testing.T) {
	ctx := context.Background()
	d := newFakeDHT()
	sec := testSecret(t, 1)

	sb, err := ServerBootstrapFromURLs([]string{"wss://relay.example", "https://fallback.example"}, 1)
	if err != nil {
		t.Fatalf("ServerBootstrapFromURLs: %v", err)
	}
	if err := sb.Publish(ctx, d, sec); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sb.Seq() != 2 {
		t.Fatalf("Seq after publish = %d, want 2", sb.Seq())
	}

	got, err := ResolveServer(ctx, d, sec.Public())
	if err != nil {
		t.Fatalf("ResolveServer: %v", err)
	}
	if got == nil {
		t.Fatal("ResolveServer returned nil for a published record")
	}
	if got.EncodeValue() != sb.EncodeValue() || got.Seq() != 2 {
		t.Fatalf("resolved %q seq %d, want %q seq 2", got.EncodeValue(), got.Seq(), sb.EncodeValue())
	}
}

func TestResolveAbsentIsNil(t *testing.T) {
	ctx := context.Background()
	d := newFakeDHT()
	sec := testSecret(t, 2)

	sb, err := ResolveServer(ctx, d, sec.Public())
	if err != nil || sb != nil {
		t.Fatalf("ResolveServer absent = %v, %v; want nil, nil", sb, err)
	}
	ub, err := ResolveUser(ctx, d, sec.Public())
	if err != nil || ub != nil {
		t.Fatalf("ResolveUser absent = %v, %v; want nil, nil", ub, err)
	}
}

func TestUserValueRoundtrip(t *testing.T) {
	outboxServer := testSecret(t, 3).Public()
	inboxServer := testSecret(t, 4).Public()

	ub := NewUserBootstrap()
	ub.Append(UsageOutbox|UsageEncryption, outboxServer)
	ub.Append(UsageInbox, inboxServer)

	got, err := DecodeUserValue(ub.EncodeValue(), 7)
	if err != nil {
		t.Fatalf("DecodeUserValue: %v", err)
	}
	if got.Seq() != 7 {
		t.Fatalf("Seq = %d, want 7", got.Seq())
	}
	entries := got.Entries()
	if len(entries) != 2 {
		t.Fatalf("decoded %d entries, want 2", len(entries))
	}
	if entries[0].Usage != UsageOutbox|UsageEncryption || entries[0].Server != outboxServer {
		t.Errorf("entry 0 = %v/%s", entries[0].Usage, entries[0].Server)
	}
	if entries[1].Usage != UsageInbox || entries[1].Server != inboxServer {
		t.Errorf("entry 1 = %v/%s", entries[1].Usage, entries[1].Server)
	}
}

func TestUserValueRejections(t *testing.T) {
	for _, value := range []string{
		"S\n1 mopub0abc", // server prefix on a user record
		"U",
		"U\n",
		"U\n1mopub0abc",  // missing separator
		"U\n1 notakey00", // unparsable key
	} {
		if _, err := DecodeUserValue(value, 1); !IsCode(err, BadValue) {
			t.Errorf("DecodeUserValue(%q) = %v, want BadValue", value, err)
		}
	}
}

func TestUserPublishBumpsSeq(t *testing.T) {
	ctx := context.Background()
	d := newFakeDHT()
	sec := testSecret(t, 5)
	server := testSecret(t, 6).Public()

	ub := NewUserBootstrap()
	ub.Append(UsageOutbox|UsageInbox, server)
	if err := ub.Publish(ctx, d, sec); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	if ub.Seq() != 1 {
		t.Fatalf("Seq after first publish = %d, want 1", ub.Seq())
	}
	ub.Append(UsageEncryption, testSecret(t, 7).Public())
	if err := ub.Publish(ctx, d, sec); err != nil {
		t.Fatalf("second Publish: %v", err)
	}

	got, err := ResolveUser(ctx, d, sec.Public())
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if got == nil || got.Seq() != 2 || len(got.Entries()) != 2 {
		t.Fatalf("resolved %+v, want seq 2 with 2 entries", got)
	}
}

func TestUsageStringAndFlags(t *testing.T) {
	u := UsageOutbox | UsageInbox
	if !u.Has(UsageOutbox) || !u.Has(UsageInbox) || u.Has(UsageEncryption) {
		t.Fatalf("flag checks wrong for %v", u)
	}
	if u.String() != "outbox+inbox" {
		t.Fatalf("String = %q", u.String())
	}
	if ServerUsage(0).String() != "none" {
		t.Fatalf("zero usage String = %q", ServerUsage(0).String())
	}
}
