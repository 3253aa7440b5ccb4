// Package janitor enforces trace hygiene: expiry, pruning of
// dangling-binary traces, re-optimization, histogram pruning and
// directory-content enforcement.
//
// Grounded on _examples/majorcontext-moat/internal/system/tempclean.go
// (glob-based orphan discovery with a re-verified age check immediately
// before deletion, to avoid a TOCTOU race against a trace that starts
// being rewritten between the scan and the delete).
package janitor

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/tracestore"
)

const (
	// MissingBinaryGraceDays is how long a trace whose exe has
	// disappeared is kept before deletion (spec.md §4.6: "older than 1
	// day").
	MissingBinaryGraceDays = 1
)

// Report summarizes one housekeeping run.
type Report struct {
	Removed        int
	Optimized      int
	Skipped        int
	Errors         int
	HistogramPruned int
}

// Janitor runs periodic and on-demand trace hygiene passes.
type Janitor struct {
	store     *tracestore.Store
	histogram *hothistogram.Histogram
}

// New builds a Janitor bound to store and histogram.
func New(store *tracestore.Store, histogram *hothistogram.Histogram) *Janitor {
	return &Janitor{store: store, histogram: histogram}
}

// Run performs one idempotent, order-free housekeeping pass.
func (j *Janitor) Run() Report {
	log := logging.For("janitor")
	var report Report

	rows, err := j.store.List(tracestore.Filter{})
	if err != nil {
		log.Error("listing catalog for housekeeping", "error", err)
		report.Errors++
		return report
	}

	now := time.Now()
	for _, row := range rows {
		flags := tracestore.Flags(row)

		if flags&tracestore.FlagExpired != 0 {
			if err := j.store.Remove(row.Hash); err != nil {
				log.Warn("removing expired trace", "hash", row.Hash, "error", err)
				report.Errors++
				continue
			}
			report.Removed++
			continue
		}

		if flags&tracestore.FlagMissingBinary != 0 {
			if now.Sub(row.CreatedAt) >= MissingBinaryGraceDays*24*time.Hour {
				if err := j.store.Remove(row.Hash); err != nil {
					log.Warn("removing dangling trace", "hash", row.Hash, "error", err)
					report.Errors++
					continue
				}
				report.Removed++
				continue
			}
			report.Skipped++
			continue
		}

		if !row.Optimized {
			if err := j.reoptimize(row); err != nil {
				log.Warn("re-optimizing trace", "hash", row.Hash, "error", err)
				report.Errors++
				continue
			}
			report.Optimized++
			continue
		}

		report.Skipped++
	}

	if j.histogram != nil {
		report.HistogramPruned = j.histogram.PruneMissing(binaryExists)
	}

	return report
}

func (j *Janitor) reoptimize(row tracestore.Row) error {
	hash, err := strconv.ParseUint(row.Hash, 10, 64)
	if err != nil {
		return err
	}
	log, err := j.store.GetByHash(hash)
	if err != nil {
		return err
	}
	if log == nil {
		return nil
	}
	log.Optimize()
	return j.store.Put(log, true)
}

func binaryExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnforceDirectoryContents removes any file in dir that is not a
// *.trace artifact, returning the number of stray files removed.
func EnforceDirectoryContents(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".trace" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Re-verify age before deletion: skip anything modified in the
		// last minute in case it's a temp file mid-rename by Store.Put.
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < time.Minute {
			continue
		}
		if err := os.Remove(path); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
