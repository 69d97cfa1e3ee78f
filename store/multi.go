package store

import (
	"errors"

	"github.com/justinmoon/mosaic-core/record"
)

// Multi provides deterministic, ordered fallback across stores.
//
// Read order is the slice order; callers supply a fixed order so the
// retrieval strategy stays explicit. Put writes only to the first
// store; later stores are read-side tiers (caches, remote mirrors).
type Multi struct {
	Stores []Store
}

func (m Multi) Put(rec *record.Record) error {
	if len(m.Stores) == 0 {
		return errors.New("store: Multi has no stores")
	}
	return m.Stores[0].Put(rec)
}

func (m Multi) Get(addr record.Address) (*record.Record, error) {
	for _, s := range m.Stores {
		rec, err := s.Get(addr)
		if err == nil {
			return rec, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Multi) Has(addr record.Address) bool {
	for _, s := range m.Stores {
		if s.Has(addr) {
			return true
		}
	}
	return false
}

// List merges the addresses of every store, deduplicated.
func (m Multi) List() ([]record.Address, error) {
	seen := make(map[record.Address]bool)
	var out []record.Address
	for _, s := range m.Stores {
		addrs, err := s.List()
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out, nil
}
