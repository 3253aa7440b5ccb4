//go:build linux

// Linux back-end: grounded on the raw SYS_CAPGET/SYS_CAPSET syscall
// pattern from other_examples' gravwell caps_linux.go (capHeader/capData
// layout, linuxCapV3 version magic), extended here with a Set half
// gravwell's read-only helper didn't need.
package capabilities

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const linuxCapV3 = 0x20080522

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// Set is a bitmask over capability numbers (0-63).
type Set uint64

// Get reads the calling thread's effective capability set. Capability
// state in Linux is per-thread, so this must be called on the same OS
// thread that will later have its privileges dropped (pair with
// runtime.LockOSThread).
func Get() (Set, error) {
	hdr := capHeader{version: linuxCapV3}
	var data [2]capData
	_, _, errno := unix.RawSyscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data)), 0)
	if errno != 0 {
		return 0, fmt.Errorf("capget: %w", errno)
	}
	return Set(uint64(data[0].effective) | uint64(data[1].effective)<<32), nil
}

// Has reports whether cap is present in s.
func (s Set) Has(cap uint) bool {
	return s&(1<<cap) != 0
}

// RetainOnly sets the calling thread's effective, permitted and
// inheritable capability sets to exactly the given capability numbers,
// dropping everything else. Used right after setuid(non-root) to retain
// CAP_DAC_READ_SEARCH and CAP_SYS_PTRACE instead of losing all
// capabilities as an ordinary setuid call would.
func RetainOnly(caps ...uint) error {
	var mask uint64
	for _, c := range caps {
		mask |= 1 << c
	}

	hdr := capHeader{version: linuxCapV3}
	data := [2]capData{
		{
			effective:   uint32(mask),
			permitted:   uint32(mask),
			inheritable: uint32(mask),
		},
		{
			effective:   uint32(mask >> 32),
			permitted:   uint32(mask >> 32),
			inheritable: uint32(mask >> 32),
		},
	}

	_, _, errno := unix.RawSyscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data)), 0)
	if errno != 0 {
		return fmt.Errorf("capset: %w", errno)
	}
	return nil
}
