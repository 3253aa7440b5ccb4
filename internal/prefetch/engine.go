// Package prefetch implements the bounded-thread-pool page cache priming
// engine: given a trace artifact or a ranked histogram, it replays every
// referenced file through the open/fstat/readahead/mmap/fadvise/madvise/
// mlock/close sequence described in spec.md §4.5.
package prefetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/iotrace"
	"github.com/X3n0m0rph59/precached/internal/logging"
)

// Engine drives replay of trace artifacts into the page cache.
type Engine struct {
	pool      *Pool
	histogram hothistogram.Ranker
	withMlock bool

	mu       sync.Mutex
	mappings []Mapping
	closed   bool
}

// Config configures a new Engine.
type Config struct {
	NumPrefetcherThreads int // spec.md: NUM_PREFETCHER_THREADS = 4
	PrefetcherNiceness   int
	WithMlock            bool
	Histogram            hothistogram.Ranker
}

// New builds an Engine with its own dedicated prefetch pool.
func New(cfg Config) *Engine {
	n := cfg.NumPrefetcherThreads
	if n <= 0 {
		n = 4
	}
	return &Engine{
		pool:      NewPool(n, cfg.PrefetcherNiceness),
		histogram: cfg.Histogram,
		withMlock: cfg.WithMlock,
	}
}

// CacheFile runs the single-file caching primitive and, on success,
// retains the resulting Mapping for Shutdown to release.
func (e *Engine) CacheFile(path string) FileResult {
	res := cacheFile(path, e.withMlock)
	if res.Mapping != nil && res.Mapping.Len > 0 {
		e.mu.Lock()
		e.mappings = append(e.mappings, *res.Mapping)
		e.mu.Unlock()
	}
	return res
}

// Replay caches every unique file referenced by log, fanning the work out
// across the prefetch pool and joining on completion (spec.md: "a
// Prefetch pool executes step sequences in parallel, one job per file").
func (e *Engine) Replay(ctx context.Context, log *iotrace.Log) Report {
	files := log.UniqueFiles()
	results := make([]FileResult, len(files))

	var g errgroup.Group
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			done := make(chan struct{})
			var r FileResult
			e.pool.Submit(func() {
				if err := ctx.Err(); err != nil {
					r = FileResult{Path: path, Err: err}
				} else {
					r = e.CacheFile(path)
				}
				close(done)
			})
			select {
			case <-done:
			case <-ctx.Done():
				<-done // still wait: the submitted job owns the fd until it returns
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	return summarize(results)
}

// ReplayAll drives the HotHistogram-ranked PrimeCaches/low-watermark
// iteration, checking ctx between traces and (inside Replay) before each
// file is cached, so a re-fired low-watermark event
// can cancel an in-progress pass (spec.md §4.5: "checked between files").
func (e *Engine) ReplayAll(ctx context.Context, resolve func(exePath string) (*iotrace.Log, bool)) Report {
	log := logging.For("prefetch")
	var combined []FileResult

	for _, entry := range e.histogram.Ranked() {
		if ctx.Err() != nil {
			log.Info("prefetch replay cancelled", "remaining_skipped", true)
			break
		}
		tlog, ok := resolve(entry.Path)
		if !ok {
			continue
		}
		r := e.Replay(ctx, tlog)
		combined = append(combined, r.Results...)
	}

	return summarize(combined)
}

func summarize(results []FileResult) Report {
	r := Report{Results: results}
	for _, res := range results {
		switch {
		case res.Mapping != nil:
			r.Cached++
		case res.Reason == ReasonSUIDSGID || res.Reason == ReasonOversize:
			r.Refused++
		default:
			r.Failed++
		}
	}
	return r
}

// Shutdown releases every mapping this engine has produced and stops its
// prefetch pool. Resolves the open question in spec.md §9: munmap is
// made explicit rather than left implicit at process exit.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	mappings := e.mappings
	e.mappings = nil
	e.mu.Unlock()

	log := logging.For("prefetch")
	for _, m := range mappings {
		if err := munmap(m); err != nil {
			log.Warn("munmap failed during shutdown", "path", m.Path, "error", err)
		}
	}
	e.pool.Close()
}
