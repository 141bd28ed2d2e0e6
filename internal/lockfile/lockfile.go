// Package lockfile provides cross-run mutual exclusion through a PID lock
// file. Acquisition is non-blocking; a lock left behind by a dead process is
// detected via a liveness probe and reclaimed.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// ErrLockHeld is returned when another live process holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// Lock represents an acquired lock. Release removes the underlying file and
// is safe to call multiple times and on all exit paths.
type Lock struct {
	path string
	once sync.Once
}

// Acquire creates the lock file at path with the current process ID,
// failing immediately with ErrLockHeld if another live process owns it.
// A lock file whose owner is no longer alive is reclaimed.
func Acquire(path string) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := tryCreate(path)
		if err == nil {
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		pid, readErr := readPID(path)
		if readErr == nil && processAlive(pid) {
			return nil, fmt.Errorf("%w (pid %d, %s)", ErrLockHeld, pid, path)
		}
		// Stale or unreadable lock file, remove and retry once.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove stale lock file: %w", rmErr)
		}
	}
	return nil, fmt.Errorf("%w (%s)", ErrLockHeld, path)
}

// Release removes the lock file. Idempotent; never fails.
func (l *Lock) Release() {
	l.once.Do(func() {
		_ = os.Remove(l.path)
	})
}

// Path returns the location of the lock file.
func (l *Lock) Path() string { return l.path }

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path comes from the operator
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	cerr := f.Close()
	if werr != nil {
		_ = os.Remove(path)
		return werr
	}
	if cerr != nil {
		_ = os.Remove(path)
		return cerr
	}
	return nil
}

func readPID(path string) (int, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // reading our own lock file
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed lock file %s: %q", path, raw)
	}
	return pid, nil
}

// processAlive probes the process with signal 0. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
