package store

import (
	"bytes"
	"sync"

	"github.com/justinmoon/mosaic-core/record"
)

// Mem is an in-memory record store, for caches and tests. The zero
// value is not usable; call NewMem.
type Mem struct {
	mu   sync.RWMutex
	recs map[record.Address][]byte
}

func NewMem() *Mem {
	return &Mem{recs: make(map[record.Address][]byte)}
}

func (s *Mem) Put(rec *record.Record) error {
	raw := rec.Bytes()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.recs[rec.Address()]; ok {
		if !bytes.Equal(existing, raw) {
			return ErrImmutable
		}
		return nil
	}
	s.recs[rec.Address()] = raw
	return nil
}

func (s *Mem) Get(addr record.Address) (*record.Record, error) {
	s.mu.RLock()
	b, ok := s.recs[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return reverify(b, addr)
}

func (s *Mem) Has(addr record.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recs[addr]
	return ok
}

func (s *Mem) List() ([]record.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Address, 0, len(s.recs))
	for addr := range s.recs {
		out = append(out, addr)
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *Mem) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
