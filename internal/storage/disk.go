package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore keeps uploads in a local directory served under baseURL.
type DiskStore struct {
	dir     string
	baseURL string
	maxSize int64
	now     func() time.Time
}

// NewDiskStore creates dir if needed. maxSize of 0 disables the size check.
func NewDiskStore(dir, baseURL string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // uploads are served publicly
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSize: maxSize,
		now:     time.Now,
	}, nil
}

// Dir returns the upload directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save writes r to a new file. Partial files are removed on failure.
func (s *DiskStore) Save(ctx context.Context, name string, r io.Reader, size int64, _ string) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := NewKey(name, s.now())
	path := filepath.Join(s.dir, key)

	f, err := os.Create(path) //nolint:gosec // key is generated, not user supplied
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}

	reader := r
	if s.maxSize > 0 {
		reader = io.LimitReader(r, s.maxSize+1)
	}
	written, copyErr := io.Copy(f, reader)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("writing upload file: %w", copyErr)
	case closeErr != nil:
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("closing upload file: %w", closeErr)
	case s.maxSize > 0 && written > s.maxSize:
		os.Remove(path) //nolint:errcheck // best-effort cleanup
		return "", ErrTooLarge
	}

	return key, nil
}

// Delete removes the file for key.
func (s *DiskStore) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing upload file: %w", err)
	}
	return nil
}

// URL returns baseURL/key.
func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/" + key
}
