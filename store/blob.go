package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"github.com/justinmoon/mosaic-core/cidutil"
)

// BlobCAS stores opaque payload blobs that records reference rather
// than carry inline, keyed by CIDv1 (raw, blake3-256).
//
// Contract:
//   - Put is idempotent and derives the CID from the bytes written.
//   - Stored blobs are immutable.
//   - Get returns ErrNotFound for an absent CID and ErrMismatch when
//     the bytes on disk no longer hash to it.
type BlobCAS struct {
	root string
}

// NewBlobCAS constructs a filesystem blob store rooted at root.
func NewBlobCAS(root string) (*BlobCAS, error) {
	if root == "" {
		return nil, errors.New("store: blob root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &BlobCAS{root: root}, nil
}

func (c *BlobCAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawBlake3CID(data)
	if err != nil {
		return cid.Undef, err
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || !bytes.Equal(existing, data) {
				return cid.Undef, ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (c *BlobCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	check, err := cidutil.CIDv1RawBlake3CID(b)
	if err != nil {
		return nil, err
	}
	if check != id {
		return nil, ErrMismatch
	}
	return b, nil
}

func (c *BlobCAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *BlobCAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 3 {
		return filepath.Join(c.root, s)
	}
	// Shard past the "b" multibase prefix.
	return filepath.Join(c.root, s[1:3], s)
}
