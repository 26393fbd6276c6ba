// Package filelock provides a cross-process lock backed by a lock file.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 50 * time.Millisecond

// FileLock implements ports.Locker with flock(2) on path.
type FileLock struct {
	path string
}

func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLock) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("cannot acquire lock %s", l.path)
	}
	return fl.Unlock, nil
}
