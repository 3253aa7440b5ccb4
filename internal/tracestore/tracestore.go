// Package tracestore owns the on-disk catalog of trace artifacts under
// <state_dir>/iotrace/<hash>.trace, indexed by a modernc.org/sqlite
// catalog database for fast listing and filtering.
//
// Grounded on _examples/majorcontext-moat/internal/audit/store.go for the
// database/sql + modernc.org/sqlite wiring (WAL mode, raw DDL), and on
// _examples/majorcontext-moat/internal/storage/storage.go for the
// directory-layout conventions.
package tracestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/X3n0m0rph59/precached/internal/iotrace"
	"github.com/X3n0m0rph59/precached/internal/mountinfo"
)

// Flag is a derived, never-persisted property of an artifact.
type Flag int

const (
	FlagValid Flag = 1 << iota
	FlagInvalid
	FlagFresh
	FlagExpired
	FlagCurrent
	FlagOutdated
	FlagMissingBinary
)

// Store is the on-disk trace artifact catalog.
type Store struct {
	dir string // <state_dir>/iotrace
	db  *sql.DB
}

// Open creates dir if needed and opens (creating if absent) the sqlite
// catalog index at dbPath.
func Open(dir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating trace directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database %q: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}

	return &Store{dir: dir, db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS artifacts (
	hash TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	exe TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0,
	optimized INTEGER NOT NULL DEFAULT 0,
	blacklisted INTEGER NOT NULL DEFAULT 0,
	device_major INTEGER NOT NULL DEFAULT -1,
	device_minor INTEGER NOT NULL DEFAULT -1
);
CREATE INDEX IF NOT EXISTS idx_artifacts_hit_count ON artifacts(hit_count DESC);
CREATE INDEX IF NOT EXISTS idx_artifacts_exe ON artifacts(exe);
`

// Close releases the catalog database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the artifact directory Store was opened with, so callers
// (the CLI, tests) can build artifact paths the same way Put does.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) pathFor(hash string) string {
	return filepath.Join(s.dir, hash+".trace")
}

// deviceFor resolves which device/filesystem exe lives on, so the catalog
// can later apply a per-device prefetch policy (spinning disk vs SSD vs
// tmpfs) without re-parsing mountinfo on every lookup. Returns (-1, -1)
// if mountinfo is unavailable or no mount matches, which callers treat as
// "unknown device" rather than a hard failure.
func deviceFor(exe string) (major, minor int) {
	mounts, err := mountinfo.Parse(os.Getpid())
	if err != nil {
		return -1, -1
	}
	m, ok := mountinfo.DeviceFor(mounts, exe)
	if !ok {
		return -1, -1
	}
	return m.Major, m.Minor
}

// Put writes log to disk if it meets the length/size floor (or
// allowTruncate is set, the janitor path), updating the catalog index.
// Writes are atomic from the readers' viewpoint: encode to a temp file in
// the same directory, then rename over the final path.
func (s *Store) Put(log *iotrace.Log, allowTruncate bool) error {
	if !allowTruncate && !log.ShouldPersist() {
		return nil
	}

	data, err := log.Marshal()
	if err != nil {
		return fmt.Errorf("encoding trace artifact: %w", err)
	}

	finalPath := s.pathFor(log.HashString())
	tmp, err := os.CreateTemp(s.dir, ".tmp-*.trace")
	if err != nil {
		return fmt.Errorf("creating temp artifact file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp artifact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp artifact file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming artifact into place: %w", err)
	}

	major, minor := deviceFor(log.Exe)

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO artifacts (hash, path, exe, size_bytes, created_at, last_used_at, hit_count, optimized, blacklisted, device_major, device_minor)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			path=excluded.path, exe=excluded.exe, size_bytes=excluded.size_bytes,
			created_at=excluded.created_at, optimized=excluded.optimized,
			device_major=excluded.device_major, device_minor=excluded.device_minor`,
		log.HashString(), finalPath, log.Exe, log.AccumulatedSize, log.CreatedAt.Unix(), now.Unix(), log.Optimized, major, minor,
	)
	if err != nil {
		return fmt.Errorf("updating catalog index: %w", err)
	}

	return nil
}

// Get loads the artifact recorded for the exact (exePath, cmdline) pair,
// recomputing its fingerprint. Use this when the caller knows the precise
// invocation that was traced (e.g. replaying a specific command line).
// Callers that only have an executable path and want whatever was last
// (or most often) traced for it should use GetByExe instead.
func (s *Store) Get(exePath, cmdline string) (*iotrace.Log, error) {
	return s.GetByHash(iotrace.FingerprintOf(exePath, cmdline))
}

// GetByExe looks up the catalog's exe column directly rather than
// recomputing a fingerprint, since the trace that was actually saved for
// exePath was keyed on its real (non-empty) cmdline, not an empty one.
// Among non-blacklisted rows for exePath it returns the one with the
// highest hit count, breaking ties by most recently used, or (nil, nil)
// if exePath has no catalog entry.
func (s *Store) GetByExe(exePath string) (*iotrace.Log, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT hash FROM artifacts WHERE exe=? AND blacklisted=0
		 ORDER BY hit_count DESC, last_used_at DESC LIMIT 1`,
		exePath,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying catalog for %q: %w", exePath, err)
	}
	h, err := strconv.ParseUint(hash, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt catalog hash %q for %q: %w", hash, exePath, err)
	}
	return s.GetByHash(h)
}

// GetByHash loads the artifact with the given fingerprint, or (nil, nil)
// if absent.
func (s *Store) GetByHash(hash uint64) (*iotrace.Log, error) {
	path := s.pathFor(fmt.Sprintf("%d", hash))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading artifact %q: %w", path, err)
	}
	log, err := iotrace.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %q is invalid: %w", path, err)
	}
	s.touch(fmt.Sprintf("%d", hash))
	return log, nil
}

func (s *Store) touch(hash string) {
	_, _ = s.db.Exec(`UPDATE artifacts SET last_used_at=?, hit_count=hit_count+1 WHERE hash=?`,
		time.Now().UTC().Unix(), hash)
}

// Row is a catalog entry as seen by List.
type Row struct {
	Hash        string
	Path        string
	Exe         string
	SizeBytes   int64
	CreatedAt   time.Time
	LastUsed    time.Time
	HitCount    int64
	Optimized   bool
	Blacklisted bool
	DeviceMajor int
	DeviceMinor int
}

// Filter narrows List results; a zero-valued Filter matches everything
// except blacklisted rows, which are hidden unless IncludeBlacklisted is
// set (mirroring how a blacklisted trace is invisible to PrimeCaches but
// still inspectable by tooling).
type Filter struct {
	OnlyMissingBinary  bool
	OnlyUnoptimized    bool
	IncludeBlacklisted bool
}

// List returns catalog rows sorted by hit count descending (the same
// order HotHistogram ranks prefetch replay).
func (s *Store) List(filter Filter) ([]Row, error) {
	rows, err := s.db.Query(`SELECT hash, path, exe, size_bytes, created_at, last_used_at, hit_count, optimized, blacklisted, device_major, device_minor
	                          FROM artifacts ORDER BY hit_count DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var createdAt, lastUsed int64
		var optimized, blacklisted int
		if err := rows.Scan(&r.Hash, &r.Path, &r.Exe, &r.SizeBytes, &createdAt, &lastUsed, &r.HitCount, &optimized, &blacklisted, &r.DeviceMajor, &r.DeviceMinor); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.LastUsed = time.Unix(lastUsed, 0).UTC()
		r.Optimized = optimized != 0
		r.Blacklisted = blacklisted != 0

		if r.Blacklisted && !filter.IncludeBlacklisted {
			continue
		}
		if filter.OnlyUnoptimized && r.Optimized {
			continue
		}
		if filter.OnlyMissingBinary {
			if _, statErr := os.Stat(r.Exe); statErr == nil {
				continue
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Blacklist marks (enable=true) or unmarks (enable=false) the catalog row
// whose artifact path matches path. Blacklisted rows are skipped by
// GetByExe and by List unless Filter.IncludeBlacklisted is set, so a
// blacklisted trace is never replayed by PrimeCaches but is still
// inspectable and reversible. dryrun reports whether a matching row
// exists without writing anything, for `precached blacklist --dry-run`.
// Returns false if no catalog row has that path.
func (s *Store) Blacklist(path string, enable, dryrun bool) (bool, error) {
	if dryrun {
		var hash string
		err := s.db.QueryRow(`SELECT hash FROM artifacts WHERE path=?`, path).Scan(&hash)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("querying catalog for %q: %w", path, err)
		}
		return true, nil
	}

	val := 0
	if enable {
		val = 1
	}
	res, err := s.db.Exec(`UPDATE artifacts SET blacklisted=? WHERE path=?`, val, path)
	if err != nil {
		return false, fmt.Errorf("updating blacklist state for %q: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove deletes the artifact file and its catalog row.
func (s *Store) Remove(hash string) error {
	path := s.pathFor(hash)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing artifact %q: %w", path, err)
	}
	_, err := s.db.Exec(`DELETE FROM artifacts WHERE hash=?`, hash)
	return err
}

// Flags computes the derived, never-persisted flags for a catalog row.
func Flags(r Row) Flag {
	var f Flag

	age := time.Since(r.CreatedAt)
	if age < iotrace.IOTraceExpiryDays*24*time.Hour {
		f |= FlagFresh
	} else {
		f |= FlagExpired
	}

	info, err := os.Stat(r.Exe)
	if err != nil {
		f |= FlagMissingBinary
		return f | FlagValid
	}
	if r.CreatedAt.After(info.ModTime()) {
		f |= FlagCurrent
	} else {
		f |= FlagOutdated
	}
	return f | FlagValid
}

// RebuildFromDisk discards the index and rescans dir for *.trace files,
// restoring the catalog from the artifacts on disk. The directory is
// always the source of truth; this makes that explicit.
func (s *Store) RebuildFromDisk() (int, error) {
	if _, err := s.db.Exec(`DELETE FROM artifacts`); err != nil {
		return 0, fmt.Errorf("clearing catalog index: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scanning trace directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".trace" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		log, err := iotrace.Unmarshal(data)
		if err != nil {
			continue
		}
		if err := s.Put(log, true); err != nil {
			continue
		}
		count++
	}
	return count, nil
}
