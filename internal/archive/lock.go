package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is how often a blocked Lock polls the lock file.
const lockRetry = 50 * time.Millisecond

// DirLock serializes extractions into one directory across goroutines
// and processes. The lock file lives at <dir>/.extract.lock.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for dir. Nothing is touched until Lock.
func NewDirLock(dir string) *DirLock {
	p := filepath.Join(dir, LockFile)
	return &DirLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *DirLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire lock %s", l.path)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
