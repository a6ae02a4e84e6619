package repo

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// DirLock is a cross-process advisory lock over a data directory, so two
// processes never open the same repository for writing at once.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock file at <dir>/.knowdisk.lock.
func NewDirLock(dir string) *DirLock {
	path := filepath.Join(dir, ".knowdisk.lock")
	return &DirLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking.
func (l *DirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, knowerr.Wrap(knowerr.KindStorage, "create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, knowerr.Wrap(knowerr.KindStorage, "acquire directory lock", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "release directory lock", err)
	}
	l.locked = false
	return nil
}
