package dht

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"net"
	"sync"
	"time"
)

// tokenStore issues and validates announce tokens when serving.
// Tokens bind a requester's endpoint to a target and expire by secret
// rotation: a token minted under the current or previous secret is
// accepted, anything older is not.
type tokenStore struct {
	mu        sync.Mutex
	current   [16]byte
	previous  [16]byte
	rotatedAt time.Time
	interval  time.Duration
}

func newTokenStore(interval time.Duration) (*tokenStore, error) {
	ts := &tokenStore{interval: interval}
	if _, err := io.ReadFull(rand.Reader, ts.current[:]); err != nil {
		return nil, wrapError(Malformed, "token secret", err)
	}
	ts.previous = ts.current
	return ts, nil
}

func (ts *tokenStore) issue(addr *net.UDPAddr, target NodeID, now time.Time) string {
	ts.mu.Lock()
	ts.maybeRotate(now)
	secret := ts.current
	ts.mu.Unlock()
	return mintToken(secret, addr, target)
}

func (ts *tokenStore) validate(token string, addr *net.UDPAddr, target NodeID, now time.Time) bool {
	ts.mu.Lock()
	ts.maybeRotate(now)
	cur, prev := ts.current, ts.previous
	ts.mu.Unlock()

	if hmac.Equal([]byte(token), []byte(mintToken(cur, addr, target))) {
		return true
	}
	return hmac.Equal([]byte(token), []byte(mintToken(prev, addr, target)))
}

func (ts *tokenStore) maybeRotate(now time.Time) {
	if now.Sub(ts.rotatedAt) < ts.interval {
		return
	}
	ts.previous = ts.current
	if _, err := io.ReadFull(rand.Reader, ts.current[:]); err == nil {
		ts.rotatedAt = now
	}
}

func mintToken(secret [16]byte, addr *net.UDPAddr, target NodeID) string {
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(addr.String()))
	mac.Write(target[:])
	return string(mac.Sum(nil)[:8])
}
