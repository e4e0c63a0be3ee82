// Package storage keeps uploaded syllabus documents on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keyPrefix starts every generated object key.
const keyPrefix = "syllabus"

// Errors returned by stores.
var (
	ErrInvalidKey = errors.New("invalid storage key")
	ErrTooLarge   = errors.New("file too large")
)

// Store saves and removes uploaded documents.
type Store interface {
	// Save writes r under a freshly generated key derived from name and
	// returns that key.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public location of key.
	URL(key string) string
}

// NewKey builds syllabus-<unix-nanos>-<uuid8><ext> from an uploaded filename.
func NewKey(name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	return fmt.Sprintf("%s-%d-%s%s", keyPrefix, now.UnixNano(), uuid.NewString()[:8], ext)
}

// validKey rejects keys that could escape the store's namespace.
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
