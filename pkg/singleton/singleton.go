// Package singleton guards against a second instance of the daemon running
// concurrently, via an exclusive flock(2) on a lock file (§4.L, §6/§7
// SecondInstance).
package singleton

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/nenet-io/nenet-core/pkg/nerr"
)

// Lock holds an exclusive advisory lock on a file.
type Lock struct {
	file *os.File
	path string
}

// TryLock attempts to acquire an exclusive, non-blocking lock on a file
// named after name under the OS temp dir. If another process already holds
// it, returns a *nerr.SecondInstanceError.
func TryLock(name string) (*Lock, error) {
	path := filepath.Join(os.TempDir(), name+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, &nerr.ConfigError{Path: path, Details: err.Error()}
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, &nerr.SecondInstanceError{LockPath: path}
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and closes the underlying file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}
