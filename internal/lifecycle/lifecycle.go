// Package lifecycle manages the daemon's pidfile and advisory lock,
// letting the CLI commands (start/stop) find and verify a
// running daemon without talking to the control socket first.
//
// Grounded on _examples/majorcontext-moat/internal/daemon/lifecycle.go's
// LockInfo/WriteLockFile/ReadLockFile/IsAlive shape and its
// syscall.Flock-based acquireSpawnLock, adapted from moat's JSON
// daemon.lock file to spec.md's plain PID file at
// /run/precached/precached.pid plus a separate advisory lock file so a
// concurrent `precached start` can't race two daemons into existence.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// PIDFile is spec.md's daemon PID file path.
const PIDFile = "/run/precached/precached.pid"

const spawnLockFile = "/run/precached/precached.spawn.lock"

// WritePIDFile writes the current process's PID to path, creating parent
// directories as needed.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating pidfile directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads and parses path. Returns (0, nil) if the file does not
// exist.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading pidfile %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pidfile %q: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile removes path, ignoring a not-exist error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsAlive reports whether pid names a live process (signal 0 probe).
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// AcquireSpawnLock takes an advisory file lock serializing the
// check-pidfile-then-spawn sequence, so two concurrent `precached start`
// invocations can't both decide "not running" and fork two daemons.
// Returns an unlock function the caller must invoke (typically deferred).
func AcquireSpawnLock() (unlock func(), err error) {
	if err := os.MkdirAll(filepath.Dir(spawnLockFile), 0o755); err != nil {
		return nil, fmt.Errorf("creating spawn lock directory: %w", err)
	}
	f, err := os.OpenFile(spawnLockFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening spawn lock %q: %w", spawnLockFile, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %q: %w", spawnLockFile, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
