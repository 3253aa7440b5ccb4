//go:build !linux

package prefetch

import "errors"

const MaxAllowedPrefetchSizeBytes = 256 << 20

func cacheFile(path string, withMlock bool) FileResult {
	return FileResult{Path: path, Err: errors.New("prefetch: page cache priming is only available on Linux")}
}

func munmap(m Mapping) error {
	return errors.New("prefetch: page cache priming is only available on Linux")
}
