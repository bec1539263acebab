// Package lockfile guards an on-disk table against concurrent use from
// other processes. SQLite's own file locking serializes individual
// statements; this lock serializes whole CLI operations so two
// invocations cannot interleave a merge.
package lockfile

import (
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Lock is a held file lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive lock on <dbPath>.lock, polling until
// timeout. In-process tables have no path and need no lock.
func Acquire(dbPath string, timeout time.Duration) (*Lock, error) {
	fl := flock.New(dbPath + ".lock")

	deadline := time.Now().Add(timeout)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
		}
		if locked {
			return &Lock{fl: fl}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock %s (held by another rowmesh process?)", fl.Path())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
