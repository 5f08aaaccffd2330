// Package blob abstracts the remote storage that index archives are
// fetched from. Keys are slash-separated paths relative to the store root.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is the subset of an object store the index registry needs.
type Store interface {
	// List returns objects whose key matches the glob pattern, sorted by key.
	List(ctx context.Context, pattern string) ([]ObjectInfo, error)
	// Stat returns metadata for key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Open streams the object body. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
