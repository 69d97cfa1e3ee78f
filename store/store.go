package store

import (
	"errors"

	"github.com/justinmoon/mosaic-core/record"
)

// Store is immutable record storage keyed by address.
//
// Contract:
//   - Put MUST be idempotent: storing the same record twice succeeds.
//   - Stored records MUST be immutable; a Put whose bytes differ from
//     what is already stored under the address fails with ErrImmutable.
//   - Get MUST return ErrNotFound when the address is absent and
//     ErrMismatch when the stored bytes no longer verify against it.
type Store interface {
	Put(rec *record.Record) error
	Get(addr record.Address) (*record.Record, error)
	Has(addr record.Address) bool
	List() ([]record.Address, error)
}

var (
	ErrNotFound  = errors.New("store: not found")
	ErrMismatch  = errors.New("store: stored bytes do not verify against the address")
	ErrImmutable = errors.New("store: immutable record mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
