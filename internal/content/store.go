package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get when no content is stored under a hash.
var ErrNotFound = errors.New("content not found")

// Store persists payloads by content hash. Put is idempotent: storing an
// existing hash again is a no-op.
type Store interface {
	Put(ctx context.Context, hash string, data []byte) error
	Get(ctx context.Context, hash string) ([]byte, error)
}

// NopStore discards everything.
type NopStore struct{}

// Put discards data.
func (NopStore) Put(context.Context, string, []byte) error { return nil }

// Get always reports ErrNotFound.
func (NopStore) Get(_ context.Context, hash string) ([]byte, error) {
	return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
}

// DiskStore writes each payload to <dir>/<hash>.png.
type DiskStore struct {
	dir string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
//
// Precondition: dir must be non-empty.
// Postcondition: Returns a ready DiskStore or an error if dir cannot be created.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("content directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating content directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Put writes data unless a file for hash already exists. The write goes through
// a temporary file and a rename so readers never see a partial payload.
func (s *DiskStore) Put(_ context.Context, hash string, data []byte) error {
	if !ValidHash(hash) {
		return fmt.Errorf("invalid content hash %q", hash)
	}
	path := filepath.Join(s.dir, FileName(hash))
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, hash+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", hash, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming %s: %w", hash, err)
	}
	return nil
}

// Get reads the payload stored under hash.
func (s *DiskStore) Get(_ context.Context, hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, FileName(hash)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", hash, err)
	}
	return data, nil
}
