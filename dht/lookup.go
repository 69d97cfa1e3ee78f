package dht

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justinmoon/mosaic-core/keys"
	"github.com/justinmoon/mosaic-core/record"
)

const maxLookupRounds = 16

// lookupState accumulates the results of one iterative walk. Guarded
// by its own mutex so Alpha in-flight queries can merge concurrently.
type lookupState struct {
	mu        sync.Mutex
	target    NodeID
	salt      []byte
	queried   map[string]bool
	candidate []Contact
	responded []Contact
	tokens    map[string]string // endpoint -> announce token
	peers     map[string]Endpoint
	item      *MutableItem
}

func newLookupState(target NodeID, salt []byte, seed []Contact) *lookupState {
	s := &lookupState{
		target:  target,
		salt:    append([]byte(nil), salt...),
		queried: make(map[string]bool),
		tokens:  make(map[string]string),
		peers:   make(map[string]Endpoint),
	}
	s.addCandidates(seed)
	return s
}

func (s *lookupState) addCandidates(cs []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		if s.queried[c.Addr.String()] {
			continue
		}
		dup := false
		for _, have := range s.candidate {
			if have.ID == c.ID {
				dup = true
				break
			}
		}
		if !dup {
			s.candidate = append(s.candidate, c)
		}
	}
	sort.Slice(s.candidate, func(i, j int) bool {
		return s.target.CloserTo(s.candidate[i].ID, s.candidate[j].ID)
	})
}

// nextBatch pops up to n unqueried candidates, closest first.
func (s *lookupState) nextBatch(n int) []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Contact, 0, n)
	rest := s.candidate[:0]
	for _, c := range s.candidate {
		if len(batch) < n && !s.queried[c.Addr.String()] {
			s.queried[c.Addr.String()] = true
			batch = append(batch, c)
		} else {
			rest = append(rest, c)
		}
	}
	s.candidate = rest
	return batch
}

func (s *lookupState) noteResponse(c Contact, res *krResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responded = append(s.responded, c)
	if res.Token != "" {
		s.tokens[c.Addr.String()] = res.Token
	}
	for _, v := range res.Values {
		if e, err := parseCompactPeer(v); err == nil {
			s.peers[e.String()] = e
		}
	}
	if len(res.Value) > 0 {
		s.mergeItemLocked(res)
	}
}

// mergeItemLocked keeps the highest-seq mutable item whose signature
// verifies. Forged or stale copies are dropped silently.
func (s *lookupState) mergeItemLocked(res *krResponse) {
	key, err := keys.PublicKeyFromBytes([]byte(res.Key))
	if err != nil {
		return
	}
	var sig keys.Signature
	if len(res.Sig) != keys.SignatureSize {
		return
	}
	copy(sig[:], res.Sig)
	item := MutableItem{
		Key:   key,
		Salt:  append([]byte(nil), s.salt...),
		Seq:   res.Seq,
		Value: []byte(res.Value),
		Sig:   sig,
	}
	if !item.VerifySig() {
		return
	}
	if s.item != nil && s.item.Seq >= item.Seq {
		return
	}
	s.item = &item
}

// closestResponded returns up to n responders by XOR distance.
func (s *lookupState) closestResponded(n int) []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]Contact(nil), s.responded...)
	sort.Slice(sorted, func(i, j int) bool {
		return s.target.CloserTo(sorted[i].ID, sorted[j].ID)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (s *lookupState) endpoints() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Endpoint, 0, len(s.peers))
	for _, e := range s.peers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// iterate runs the Kademlia walk: each round queries up to Alpha of
// the closest unqueried candidates, merging returned nodes back into
// the shortlist, until the shortlist is exhausted.
func (c *Client) iterate(ctx context.Context, target NodeID, method string, salt []byte) (*lookupState, error) {
	seed := c.table.Closest(target, c.cfg.K)
	state := newLookupState(target, salt, seed)
	if len(seed) == 0 {
		return state, nil
	}

	for round := 0; round < maxLookupRounds; round++ {
		batch := state.nextBatch(c.cfg.Alpha)
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, contact := range batch {
			contact := contact
			g.Go(func() error {
				res, err := c.queryFor(gctx, contact, target, method, salt)
				if err != nil {
					if IsCode(err, Shutdown) {
						return err
					}
					c.log.Debug("lookup query failed",
						zap.String("peer", contact.String()),
						zap.Error(err))
					c.table.Remove(contact.ID)
					return nil // a dead peer does not fail the walk
				}
				state.noteResponse(contact, res)
				if res.Nodes != "" {
					if more, err := parseCompactNodes(res.Nodes); err == nil {
						state.addCandidates(more)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return state, err
		}
		if err := ctx.Err(); err != nil {
			return state, wrapError(Timeout, "lookup cancelled", err)
		}
	}
	return state, nil
}

func (c *Client) queryFor(ctx context.Context, contact Contact, target NodeID, method string, salt []byte) (*krResponse, error) {
	self := string(c.cfg.NodeID[:])
	switch method {
	case "find_node":
		return c.roundTrip(ctx, contact.Addr, method, &krFindNodeArgs{ID: self, Target: string(target[:])})
	case "get_peers":
		return c.roundTrip(ctx, contact.Addr, method, &krGetPeersArgs{ID: self, Target: string(target[:])})
	case "get":
		return c.roundTrip(ctx, contact.Addr, method, &krGetArgs{ID: self, Target: string(target[:])})
	default:
		return nil, newError(Malformed, "unknown lookup method "+method)
	}
}

// FindPeers walks toward target with find_node and returns the closest
// responding contacts. Used for bootstrap and table maintenance.
func (c *Client) FindPeers(ctx context.Context, target NodeID) ([]Contact, error) {
	state, err := c.iterate(ctx, target, "find_node", nil)
	if err != nil {
		return nil, err
	}
	return state.closestResponded(c.cfg.K), nil
}

// Lookup resolves the peers announced for an address. A lookup that
// completes without finding any peer returns an empty slice and a nil
// error: absence is an answer, not a failure.
func (c *Client) Lookup(ctx context.Context, addr record.Address) ([]Endpoint, error) {
	state, err := c.iterate(ctx, TargetForAddress(addr), "get_peers", nil)
	if err != nil {
		return nil, err
	}
	return state.endpoints(), nil
}

// Announce publishes this node as a peer for addr on the given port.
// It walks to the target, then sends announce_peer to the K closest
// responders using their tokens, retrying each with jittered backoff.
// Announce succeeds if at least one node accepted; otherwise it
// returns the aggregated per-node errors.
func (c *Client) Announce(ctx context.Context, addr record.Address, port int) error {
	target := TargetForAddress(addr)
	state, err := c.iterate(ctx, target, "get_peers", nil)
	if err != nil {
		return err
	}
	closest := state.closestResponded(c.cfg.K)
	if len(closest) == 0 {
		return newError(NoRoute, "announce: no node reachable for "+addr.String())
	}

	var (
		mu    sync.Mutex
		acked int
		errs  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, contact := range closest {
		contact := contact
		token := state.tokens[contact.Addr.String()]
		g.Go(func() error {
			args := &krAnnounceArgs{
				ID:     string(c.cfg.NodeID[:]),
				Target: string(target[:]),
				Port:   int64(port),
				Token:  token,
			}
			err := c.withRetries(gctx, func() error {
				_, err := c.roundTrip(gctx, contact.Addr, "announce_peer", args)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				acked++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if acked == 0 {
		return wrapError(NoRoute, "announce rejected everywhere", errs)
	}
	c.log.Debug("announced",
		zap.String("address", addr.String()),
		zap.Int("acks", acked),
		zap.Int("targets", len(closest)))
	return nil
}

// GetMutable fetches the highest-seq signed value stored under
// key and salt. A nil item with nil error means nothing is stored.
func (c *Client) GetMutable(ctx context.Context, key keys.PublicKey, salt []byte) (*MutableItem, error) {
	target := TargetForKey(key[:], salt)
	state, err := c.iterate(ctx, target, "get", salt)
	if err != nil {
		return nil, err
	}
	if state.item == nil {
		local, ok := c.mutables.get(target)
		if !ok || local.Key != key {
			return nil, nil
		}
		state.item = &local
	}
	item := *state.item
	if item.Key != key {
		return nil, newError(Malformed, "mutable item signed by unexpected key")
	}
	return &item, nil
}

// PutMutable stores a signed mutable item on the K closest nodes to
// its target. Nodes holding a higher seq keep theirs.
func (c *Client) PutMutable(ctx context.Context, item MutableItem) error {
	if !item.VerifySig() {
		return newError(Malformed, "refusing to put unsigned item")
	}
	target := item.Target()
	state, err := c.iterate(ctx, target, "get", item.Salt)
	if err != nil {
		return err
	}
	closest := state.closestResponded(c.cfg.K)
	if len(closest) == 0 {
		return newError(NoRoute, "put: no node reachable")
	}

	var (
		mu    sync.Mutex
		acked int
		errs  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, contact := range closest {
		contact := contact
		token := state.tokens[contact.Addr.String()]
		g.Go(func() error {
			args := &krPutArgs{
				ID:    string(c.cfg.NodeID[:]),
				Key:   string(item.Key[:]),
				Salt:  string(item.Salt),
				Seq:   item.Seq,
				Sig:   string(item.Sig[:]),
				Token: token,
				Value: string(item.Value),
			}
			err := c.withRetries(gctx, func() error {
				_, err := c.roundTrip(gctx, contact.Addr, "put", args)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				acked++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if acked == 0 {
		return wrapError(NoRoute, "put rejected everywhere", errs)
	}
	return nil
}

// withRetries runs fn up to AnnounceRetries times, sleeping a jittered
// multiple of RetryBackoff between attempts.
func (c *Client) withRetries(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 0; attempt < c.cfg.AnnounceRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * (1 << (attempt - 1))
			if jitter := int64(backoff / 2); jitter > 0 {
				backoff += time.Duration(rand.Int63n(jitter))
			}
			timer := c.cfg.Clock.Timer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return wrapError(Timeout, "retry cancelled", ctx.Err())
			}
		}
		if last = fn(); last == nil {
			return nil
		}
	}
	return last
}
