// Package dbfile owns the on-disk directory layout for a numstore database
// directory (`numstore db create <dir>`) and the process-exclusive lock
// that guards it, grounded on
// calvinalkan-agent-task/lock.go's acquireLockWithTimeout.
package dbfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/intellect4all/numstore/internal/storeerr"
)

const (
	// DataFileName is the pager's data file within a database directory.
	DataFileName = "data.ns"
	// WALFileName is the WAL file within a database directory.
	WALFileName = "wal.ns"
	// LockFileName is the sibling file syscall.Flock is taken on; it is
	// never written to, only locked, mirroring the teacher's separate
	// ".lock" file so the data file itself is never opened O_EXCL.
	LockFileName = ".lock"
)

// Paths are the resolved file paths for a database directory.
type Paths struct {
	Dir  string
	Data string
	WAL  string
	Lock string
}

// PathsFor resolves the three files numstore keeps inside dir.
func PathsFor(dir string) Paths {
	return Paths{
		Dir:  dir,
		Data: filepath.Join(dir, DataFileName),
		WAL:  filepath.Join(dir, WALFileName),
		Lock: filepath.Join(dir, LockFileName),
	}
}

// DefaultLockTimeout is how long Acquire retries before giving up.
const DefaultLockTimeout = 5 * time.Second

const lockRetryInterval = 10 * time.Millisecond

var (
	errLockTimeout  = errors.New("database directory is locked by another process")
	errLockFileOpen = errors.New("failed to open lock file")
)

// Lock is a held process-exclusive lock on a database directory. The
// zero value is not usable; obtain one via Acquire.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive, non-blocking syscall.Flock on dir's lock
// file, retrying at a fixed interval until timeout elapses. Only one
// process may hold a numstore database directory open at a time — the
// pager's in-process lock table (spec.md §4.4) has no cross-process
// reach, so this is the only thing that prevents two numstore processes
// from corrupting the same data file concurrently.
func Acquire(dir string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", storeerr.IO, dir, err)
	}
	lockPath := PathsFor(dir).Lock

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path built from caller dir
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s", storeerr.IO, errLockFileOpen, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &Lock{path: lockPath, file: file}, nil
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %w: %s", storeerr.IO, errLockTimeout, lockPath)
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release unlocks and closes the lock file. Safe to call once; the Lock
// must not be used afterward.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing lock file %s: %v", storeerr.IO, l.path, err)
	}
	return nil
}

// Exists reports whether dir already looks like a numstore database
// directory (its data file is present).
func Exists(dir string) bool {
	_, err := os.Stat(PathsFor(dir).Data)
	return err == nil
}
