package dht

import (
	"net"
	"sort"
	"sync"
	"time"
)

// routingTable holds known-good contacts in k-buckets ordered by XOR
// distance from the local node ID.
//
// Concurrency: lookups vastly outnumber structural updates, so reads
// take the shared lock and inserts/evictions take the exclusive lock.
type routingTable struct {
	mu sync.RWMutex

	self       NodeID
	k          int
	staleAfter time.Duration

	buckets [IDBytes * 8]*bucket

	// addresses indexes contacts by endpoint so a node that changes ID
	// cannot occupy two slots.
	addresses map[string]NodeID
}

type bucket struct {
	// entries are ordered oldest-contacted first, like the mainline
	// replacement policy expects.
	entries []bucketEntry
}

type bucketEntry struct {
	contact  Contact
	lastSeen time.Time
}

func newRoutingTable(self NodeID, k int, staleAfter time.Duration) *routingTable {
	return &routingTable{
		self:       self,
		k:          k,
		staleAfter: staleAfter,
		addresses:  make(map[string]NodeID),
	}
}

// Update records that a contact responded. New contacts are inserted
// while their bucket has room; a full bucket evicts its oldest entry
// only if that entry has gone stale.
func (rt *routingTable) Update(c Contact, now time.Time) {
	if c.ID.IsZero() || c.ID == rt.self || c.Addr == nil {
		return
	}
	idx := rt.self.bucketIndex(c.ID)
	if idx < 0 {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if prev, ok := rt.addresses[c.Addr.String()]; ok && prev != c.ID {
		rt.removeLocked(prev)
	}

	b := rt.buckets[idx]
	if b == nil {
		b = &bucket{}
		rt.buckets[idx] = b
	}

	for i := range b.entries {
		if b.entries[i].contact.ID == c.ID {
			// Refresh and move to the back (most recently seen).
			e := b.entries[i]
			e.lastSeen = now
			e.contact.Addr = c.Addr
			b.entries = append(append(b.entries[:i:i], b.entries[i+1:]...), e)
			rt.addresses[c.Addr.String()] = c.ID
			return
		}
	}

	if len(b.entries) >= rt.k {
		oldest := b.entries[0]
		if now.Sub(oldest.lastSeen) < rt.staleAfter {
			return
		}
		delete(rt.addresses, oldest.contact.Addr.String())
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, bucketEntry{contact: c, lastSeen: now})
	rt.addresses[c.Addr.String()] = c.ID
}

// Remove drops a contact (e.g. after repeated query failures).
func (rt *routingTable) Remove(id NodeID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.removeLocked(id)
}

func (rt *routingTable) removeLocked(id NodeID) {
	idx := rt.self.bucketIndex(id)
	if idx < 0 || rt.buckets[idx] == nil {
		return
	}
	b := rt.buckets[idx]
	for i := range b.entries {
		if b.entries[i].contact.ID == id {
			delete(rt.addresses, b.entries[i].contact.Addr.String())
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// Closest returns up to n contacts ordered by XOR distance to target.
func (rt *routingTable) Closest(target NodeID, n int) []Contact {
	rt.mu.RLock()
	out := make([]Contact, 0, n)
	for _, b := range rt.buckets {
		if b == nil {
			continue
		}
		for _, e := range b.entries {
			out = append(out, e.contact)
		}
	}
	rt.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return target.CloserTo(out[i].ID, out[j].ID)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Len reports the number of contacts in the table.
func (rt *routingTable) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.addresses)
}

// Contacts snapshots every entry, for table maintenance and tests.
func (rt *routingTable) Contacts() []Contact {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]Contact, 0, len(rt.addresses))
	for _, b := range rt.buckets {
		if b == nil {
			continue
		}
		for _, e := range b.entries {
			out = append(out, e.contact)
		}
	}
	return out
}

func cloneUDPAddr(a *net.UDPAddr) *net.UDPAddr {
	if a == nil {
		return nil
	}
	ip := make(net.IP, len(a.IP))
	copy(ip, a.IP)
	return &net.UDPAddr{IP: ip, Port: a.Port, Zone: a.Zone}
}
