package watch

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another panmk already watches the same source.
var ErrLocked = errors.New("another panmk is already watching this file")

// LockPath returns the lock file guarding source.
func LockPath(source string) string {
	return filepath.Join(filepath.Dir(source), "."+filepath.Base(source)+".panmk.lock")
}

// Lock is a held single-instance lock.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the lock for source without blocking.
func AcquireLock(source string) (*Lock, error) {
	fl := flock.New(LockPath(source))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}

	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, fl.Path())
	}

	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Release unlocks. The lock file is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
