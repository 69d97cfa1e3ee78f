package dht

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/justinmoon/mosaic-core/keys"
)

// peerStore holds announced peers when serving. Targets are evicted
// least-recently-used so a flood of announces cannot grow memory
// without bound.
type peerStore struct {
	mu       sync.Mutex
	targets  *lru.Cache[NodeID, *peerSet]
	maxPeers int
	ttl      time.Duration
}

type peerSet struct {
	peers map[string]announcedPeer
}

type announcedPeer struct {
	endpoint Endpoint
	seen     time.Time
}

func newPeerStore(maxTargets, maxPeers int, ttl time.Duration) (*peerStore, error) {
	cache, err := lru.New[NodeID, *peerSet](maxTargets)
	if err != nil {
		return nil, err
	}
	return &peerStore{targets: cache, maxPeers: maxPeers, ttl: ttl}, nil
}

func (ps *peerStore) add(target NodeID, e Endpoint, now time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	set, ok := ps.targets.Get(target)
	if !ok {
		set = &peerSet{peers: make(map[string]announcedPeer)}
		ps.targets.Add(target, set)
	}
	key := e.String()
	if _, exists := set.peers[key]; !exists && len(set.peers) >= ps.maxPeers {
		return
	}
	set.peers[key] = announcedPeer{endpoint: e, seen: now}
}

func (ps *peerStore) get(target NodeID, now time.Time) []Endpoint {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	set, ok := ps.targets.Get(target)
	if !ok {
		return nil
	}
	out := make([]Endpoint, 0, len(set.peers))
	for key, p := range set.peers {
		if now.Sub(p.seen) > ps.ttl {
			delete(set.peers, key)
			continue
		}
		out = append(out, p.endpoint)
	}
	return out
}

// MutableItem is a signed, sequenced value stored in the DHT under its
// owner's public key (and optional salt). Used for bootstrap records.
// Consumers must treat the value as untrusted until the signature has
// been checked, which GetMutable does before returning.
type MutableItem struct {
	Key   keys.PublicKey
	Salt  []byte
	Seq   int64
	Value []byte
	Sig   keys.Signature
}

// SignMutable builds a signed mutable item.
func SignMutable(secret keys.SecretKey, salt []byte, seq int64, value []byte) (MutableItem, error) {
	item := MutableItem{
		Key:   secret.Public(),
		Salt:  append([]byte(nil), salt...),
		Seq:   seq,
		Value: append([]byte(nil), value...),
	}
	sig, err := secret.Sign(item.signedBuffer())
	if err != nil {
		return MutableItem{}, err
	}
	item.Sig = sig
	return item, nil
}

// VerifySig checks the item's signature against its own key.
func (m MutableItem) VerifySig() bool {
	return m.Key.Verify(m.signedBuffer(), m.Sig)
}

// Target returns the DHT keyspace location of the item.
func (m MutableItem) Target() NodeID {
	return TargetForKey(m.Key[:], m.Salt)
}

// signedBuffer is the byte sequence the signature covers: salt, then
// sequence number, then value, each length-delimited by construction.
func (m MutableItem) signedBuffer() []byte {
	buf := make([]byte, 0, len(m.Salt)+8+len(m.Value)+16)
	buf = append(buf, byte(len(m.Salt)))
	buf = append(buf, m.Salt...)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(uint64(m.Seq)>>(8*i)))
	}
	buf = append(buf, m.Value...)
	return buf
}

// mutableStore holds mutable items when serving, newest sequence wins.
type mutableStore struct {
	mu    sync.Mutex
	items *lru.Cache[NodeID, MutableItem]
}

func newMutableStore(maxItems int) (*mutableStore, error) {
	cache, err := lru.New[NodeID, MutableItem](maxItems)
	if err != nil {
		return nil, err
	}
	return &mutableStore{items: cache}, nil
}

// put stores the item unless a same-or-newer sequence is already held.
// The caller has already checked the signature.
func (ms *mutableStore) put(item MutableItem) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	target := item.Target()
	if cur, ok := ms.items.Get(target); ok && cur.Seq >= item.Seq {
		return false
	}
	ms.items.Add(target, item)
	return true
}

func (ms *mutableStore) get(target NodeID) (MutableItem, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.items.Get(target)
}
