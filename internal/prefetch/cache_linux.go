//go:build linux

package prefetch

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MaxAllowedPrefetchSizeBytes is the oversize-refusal threshold (spec.md
// §4.5: MAX_ALLOWED_PREFETCH_SIZE = 256 MiB).
const MaxAllowedPrefetchSizeBytes = 256 << 20

// cacheFile implements the exact 8-step caching primitive from spec.md
// §4.5, translated from original_source/src/util/memory.rs's cache_file.
func cacheFile(path string, withMlock bool) FileResult {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return FileResult{Path: path, Reason: ReasonOpenFailed, Err: err}
	}
	defer f.Close()

	fd := int(f.Fd())

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return FileResult{Path: path, Reason: ReasonOpenFailed, Err: err}
	}

	if st.Mode&(unix.S_ISUID|unix.S_ISGID) != 0 {
		return FileResult{Path: path, Reason: ReasonSUIDSGID}
	}

	size := st.Size
	if size > MaxAllowedPrefetchSizeBytes {
		return FileResult{Path: path, Reason: ReasonOversize}
	}
	if size == 0 {
		// Nothing to cache; not a refusal, just a no-op success with an
		// empty mapping.
		return FileResult{Path: path, Mapping: &Mapping{Path: path}}
	}

	if err := unix.Readahead(fd, 0, int(size)); err != nil {
		// Readahead failures are advisory; continue to mmap regardless.
		_ = err
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return FileResult{Path: path, Reason: ReasonMmapFailed, Err: err}
	}

	_ = unix.Fadvise(fd, 0, size, unix.FADV_WILLNEED)
	_ = unix.Fadvise(fd, 0, size, unix.FADV_SEQUENTIAL)

	_ = unix.Madvise(data, unix.MADV_WILLNEED)
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
	_ = unix.Madvise(data, unix.MADV_MERGEABLE)

	if withMlock {
		if err := unix.Mlock(data); err != nil {
			// mlock is best-effort (commonly refused by RLIMIT_MEMLOCK);
			// the mapping still counts as cached.
			_ = err
		}
	}

	addr := uintptr(0)
	if len(data) > 0 {
		addr = addrOf(data)
	}

	// fd is closed by the deferred f.Close(); the mapping persists past
	// close per spec.md step 8.
	return FileResult{Path: path, Mapping: &Mapping{Path: path, Addr: addr, Len: len(data)}}
}

func munmap(m Mapping) error {
	if m.Len == 0 {
		return nil
	}
	data := bytesFromAddr(m.Addr, m.Len)
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %q: %w", m.Path, err)
	}
	return nil
}
