//go:build linux

package capabilities

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DropPrivileges switches the calling OS thread from root to uid/gid,
// retaining only the given capabilities afterward, and sets the process
// umask to 0007 (spec.md §6: world-unreadable trace artifacts and catalog
// database). Must run on a locked OS thread before any other goroutine
// observes capability state, since Linux capability sets are per-thread:
// callers should runtime.LockOSThread() in main() before calling this.
func DropPrivileges(uid, gid int, retain ...uint) error {
	unix.Umask(0007)

	// The kernel clears the permitted/effective/ambient capability sets
	// on any UID transition away from 0 unless PR_SET_KEEPCAPS was set
	// first. Without this, RetainOnly's capset below would find an empty
	// permitted set and fail with EPERM on every real invocation.
	if len(retain) > 0 {
		if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
			return fmt.Errorf("prctl(PR_SET_KEEPCAPS): %w", err)
		}
	}

	if err := unix.Setgroups(nil); err != nil {
		return fmt.Errorf("clearing supplementary groups: %w", err)
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("setgid(%d): %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("setuid(%d): %w", uid, err)
	}

	if len(retain) > 0 {
		if err := RetainOnly(retain...); err != nil {
			return fmt.Errorf("retaining capabilities after privilege drop: %w", err)
		}
	}
	return nil
}
