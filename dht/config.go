package dht

import (
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config controls a DHT client. The zero value plus setDefaults is a
// working client-only configuration on an ephemeral port.
type Config struct {
	// NodeID is this node's identity in the keyspace. Randomized when
	// zero.
	NodeID NodeID

	// Address is the UDP listen address, e.g. ":0".
	Address string

	// Bootstrap lists initial contacts ("IP:port") used to join the
	// network.
	Bootstrap []string

	// K is the bucket width and the result-set size for lookups.
	K int

	// Alpha is the lookup parallelism per round.
	Alpha int

	// QueryTimeout bounds a single KRPC round trip.
	QueryTimeout time.Duration

	// AnnounceRetries is the per-contact retry budget for announce
	// and put operations.
	AnnounceRetries int

	// RetryBackoff is the base backoff between retries; waits grow
	// exponentially with a random jitter up to half the step.
	RetryBackoff time.Duration

	// Serve answers incoming queries (ping, find_node, get_peers,
	// announce_peer, get, put) so local networks of clients are
	// self-sufficient. Off by default: this component is a client.
	Serve bool

	// TableStaleAfter is how long a routing entry may go unseen before
	// a full bucket may evict it.
	TableStaleAfter time.Duration

	// Clock is injectable for tests; defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to a no-op logger; library code never logs unless
	// asked to.
	Logger *zap.Logger

	// ListenPacket overrides UDP socket creation, letting tests run an
	// in-memory network.
	ListenPacket func(address string) (net.PacketConn, error)
}

func (cfg *Config) setDefaults() error {
	if cfg.NodeID.IsZero() {
		id, err := RandomNodeID()
		if err != nil {
			return err
		}
		cfg.NodeID = id
	}
	if cfg.Address == "" {
		cfg.Address = ":0"
	}
	if cfg.K == 0 {
		cfg.K = 8
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 3
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	if cfg.AnnounceRetries == 0 {
		cfg.AnnounceRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.TableStaleAfter == 0 {
		cfg.TableStaleAfter = 15 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ListenPacket == nil {
		cfg.ListenPacket = func(address string) (net.PacketConn, error) {
			return net.ListenPacket("udp", address)
		}
	}
	return nil
}
