package dht

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/zeebo/bencode"
	"go.uber.org/zap"
)

// Client is a DHT node handle. All exported methods are safe for
// concurrent use; the routing table is the only shared mutable state
// and is guarded internally.
type Client struct {
	cfg   Config
	log   *zap.Logger
	conn  net.PacketConn
	table *routingTable

	tokens   *tokenStore
	peers    *peerStore
	mutables *mutableStore

	mu      sync.Mutex
	pending map[string]chan *krpcMessage
	txSeq   uint64
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a client, binds its UDP socket, and starts the read
// loop. Callers should Bootstrap before the first lookup.
func New(cfg Config) (*Client, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	conn, err := cfg.ListenPacket(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dht: listen: %w", err)
	}

	tokens, err := newTokenStore(cfg.TableStaleAfter / 2)
	if err != nil {
		conn.Close()
		return nil, err
	}
	peers, err := newPeerStore(1024, 64, cfg.TableStaleAfter)
	if err != nil {
		conn.Close()
		return nil, err
	}
	mutables, err := newMutableStore(256)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		log:      cfg.Logger.Named("dht").With(zap.String("node", cfg.NodeID.ShortString())),
		conn:     conn,
		table:    newRoutingTable(cfg.NodeID, cfg.K, cfg.TableStaleAfter),
		tokens:   tokens,
		peers:    peers,
		mutables: mutables,
		pending:  make(map[string]chan *krpcMessage),
		done:     make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// NodeID returns this node's identity.
func (c *Client) NodeID() NodeID {
	return c.cfg.NodeID
}

// LocalAddr returns the bound UDP address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// TableSize reports the number of routing-table contacts.
func (c *Client) TableSize() int {
	return c.table.Len()
}

// Close stops the client. In-flight queries fail with Shutdown. Do not
// call other methods after Close.
func (c *Client) Close() error {
	already := !c.markDead()
	err := c.conn.Close()
	c.wg.Wait()
	if already {
		return nil
	}
	return err
}

// markDead flags the client as closed so in-flight and future queries
// fail with Shutdown instead of timing out against a dead socket.
// Reports whether this call did the transition.
func (c *Client) markDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

// Bootstrap pings the configured bootstrap contacts and walks the
// keyspace toward the local ID to populate the routing table. Partial
// success is success; Bootstrap fails only if no contact responded.
func (c *Client) Bootstrap(ctx context.Context) error {
	reached := 0
	for _, hostport := range c.cfg.Bootstrap {
		addr, err := net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			c.log.Debug("bad bootstrap address", zap.String("addr", hostport), zap.Error(err))
			continue
		}
		if _, err := c.ping(ctx, addr); err != nil {
			c.log.Debug("bootstrap contact unreachable", zap.String("addr", hostport), zap.Error(err))
			continue
		}
		reached++
	}
	if reached == 0 {
		return newError(NoRoute, "no bootstrap contact responded")
	}
	// Walking toward our own ID fills the nearest buckets.
	_, err := c.FindPeers(ctx, c.cfg.NodeID)
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
				c.log.Debug("transient read error", zap.Error(err))
				continue
			}
			c.log.Warn("socket read failed", zap.Error(err))
			c.markDead()
			return
		}
		fromUDP, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}

		var msg krpcMessage
		if err := bencode.DecodeBytes(buf[:n], &msg); err != nil {
			c.log.Debug("undecodable packet", zap.String("from", from.String()))
			continue
		}

		switch msg.Y {
		case "q":
			c.handleQuery(&msg, cloneUDPAddr(fromUDP))
		case "r", "e":
			c.dispatch(&msg, cloneUDPAddr(fromUDP))
		}
	}
}

// dispatch routes a response to the goroutine waiting on its
// transaction id. Unsolicited responses are dropped.
func (c *Client) dispatch(msg *krpcMessage, from *net.UDPAddr) {
	c.mu.Lock()
	ch, ok := c.pending[msg.TxID]
	if ok {
		delete(c.pending, msg.TxID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	ch <- msg
}

func (c *Client) nextTx() (string, chan *krpcMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", nil, newError(Shutdown, "client closed")
	}
	c.txSeq++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], c.txSeq)
	txID := string(b[4:])
	ch := make(chan *krpcMessage, 1)
	c.pending[txID] = ch
	return txID, ch, nil
}

func (c *Client) abandonTx(txID string) {
	c.mu.Lock()
	delete(c.pending, txID)
	c.mu.Unlock()
}

// roundTrip sends one query and waits for its response, bounded by the
// query timeout and the caller's context.
func (c *Client) roundTrip(ctx context.Context, addr *net.UDPAddr, method string, args interface{}) (*krResponse, error) {
	txID, ch, err := c.nextTx()
	if err != nil {
		return nil, err
	}
	defer c.abandonTx(txID)

	payload, err := marshalQuery(txID, method, args)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.WriteTo(payload, addr); err != nil {
		return nil, wrapError(NoRoute, "send "+method, err)
	}

	timer := c.cfg.Clock.Timer(c.cfg.QueryTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Y == "e" {
			return nil, newError(Malformed, fmt.Sprintf("%s: remote error %v", method, msg.Err))
		}
		var res krResponse
		if err := bencode.DecodeBytes(msg.Response, &res); err != nil {
			return nil, wrapError(Malformed, method+" response", err)
		}
		if id, err := NodeIDFromBytes([]byte(res.ID)); err == nil {
			c.table.Update(Contact{ID: id, Addr: addr}, c.cfg.Clock.Now())
		}
		return &res, nil
	case <-timer.C:
		return nil, newError(Timeout, method+" timed out")
	case <-ctx.Done():
		return nil, wrapError(Timeout, method+" cancelled", ctx.Err())
	case <-c.done:
		return nil, newError(Shutdown, "client closed")
	}
}

func (c *Client) ping(ctx context.Context, addr *net.UDPAddr) (*krResponse, error) {
	return c.roundTrip(ctx, addr, "ping", &krPingArgs{ID: string(c.cfg.NodeID[:])})
}
