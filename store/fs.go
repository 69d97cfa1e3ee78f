package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/justinmoon/mosaic-core/record"
)

// FS is a filesystem-backed record store.
//
// Records are written once, read-only, under a two-character shard of
// their printable address. The layout is offline and deterministic:
// no network, no wall-clock dependence.
type FS struct {
	root string
}

// NewFS constructs a filesystem store rooted at root, creating the
// directory if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, errors.New("store: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FS{root: root}, nil
}

func (s *FS) Put(rec *record.Record) error {
	raw := rec.Bytes()
	path := s.pathFor(rec.Address())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || !bytes.Equal(existing, raw) {
				return ErrImmutable
			}
			return nil
		}
		return err
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func (s *FS) Get(addr record.Address) (*record.Record, error) {
	b, err := os.ReadFile(s.pathFor(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reverify(b, addr)
}

func (s *FS) Has(addr record.Address) bool {
	_, err := os.Stat(s.pathFor(addr))
	return err == nil
}

// List walks the shard directories and returns every stored address.
func (s *FS) List() ([]record.Address, error) {
	var out []record.Address
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		addr, perr := record.ParseAddress(filepath.Base(path))
		if perr != nil {
			return nil // foreign file, not ours to report
		}
		out = append(out, addr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pathFor shards by the first two characters after the printable
// prefix so one directory never collects every record.
func (s *FS) pathFor(addr record.Address) string {
	printable := addr.String()
	shard := strings.TrimPrefix(printable, record.AddressPrefix)
	if len(shard) >= 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, printable)
}

// reverify decodes stored bytes against the address they were filed
// under. Any corruption, truncation or swap surfaces as ErrMismatch.
func reverify(b []byte, addr record.Address) (*record.Record, error) {
	rec, err := record.DecodeExpected(b, addr)
	if err != nil {
		return nil, errors.Join(ErrMismatch, err)
	}
	if err := rec.VerifyIntegrity(); err != nil {
		return nil, errors.Join(ErrMismatch, err)
	}
	return rec, nil
}
