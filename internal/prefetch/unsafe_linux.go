//go:build linux

package prefetch

import "unsafe"

// addrOf and bytesFromAddr bridge between unix.Mmap's []byte return value
// and the plain {addr, len} Mapping record callers retain across
// goroutine boundaries and until eventual munmap.

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func bytesFromAddr(addr uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
