// Package iotrace implements the per-executable I/O trace accumulator
// (IOTraceLog) and its on-disk artifact codec.
//
// Grounded on original_source/src/iotrace/iotrace.rs for entry shape, hash
// computation and save-gating semantics, and on
// _examples/majorcontext-moat/internal/trace/recorder.go for the
// mutex-guarded, defensive-copy accumulator idiom.
package iotrace

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// Operation tags one observed filesystem syscall.
type Operation string

const (
	OpOpen     Operation = "open"
	OpClose    Operation = "close"
	OpRead     Operation = "read"
	OpWrite    Operation = "write"
	OpStat     Operation = "stat"
	OpFstat    Operation = "fstat"
	OpGetdents Operation = "getdents"
	OpMmap     Operation = "mmap"
)

// Entry is one insertion-ordered, immutable record in a trace log.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	// FileIndex references Log.FileMap by first-seen index, per
	// spec.md's data model ("unique file paths referenced → first-seen
	// index").
	FileIndex int   `json:"file_index"`
	FD        int   `json:"fd,omitempty"`
	Size      int64 `json:"size,omitempty"`
}

const (
	// MinTraceLogLength is the minimum entry count a trace must reach to
	// be persisted (spec.md §3/§8: MIN_TRACE_LOG_LENGTH = 5).
	MinTraceLogLength = 5
	// MinTraceLogPrefetchSizeBytes is the minimum accumulated size a
	// trace must reach to be persisted (MIN_TRACE_LOG_PREFETCH_SIZE_BYTES
	// = 1 MiB).
	MinTraceLogPrefetchSizeBytes = 1 << 20
	// IOTraceExpiryDays is used by TraceStore's Fresh/Expired flag.
	IOTraceExpiryDays = 14
)

// Log is the in-memory accumulator for a single executable's trace.
type Log struct {
	mu sync.Mutex

	Hash    uint64 `json:"hash"`
	Exe     string `json:"exe"`
	Comm    string `json:"comm"`
	Cmdline string `json:"cmdline"`

	CreatedAt      time.Time  `json:"created_at"`
	TraceStoppedAt *time.Time `json:"trace_stopped_at,omitempty"`

	// FileMap maps a unique file path to the index it was first seen at.
	FileMap map[string]int `json:"file_map"`
	// Files is FileMap inverted, in first-seen order, so the artifact can
	// be rendered without reconstructing insertion order from a Go map.
	Files []string `json:"files"`

	TraceLog        []Entry `json:"trace_log"`
	AccumulatedSize int64   `json:"accumulated_size"`
	Optimized       bool    `json:"trace_log_optimized"`
}

// New creates a Log for exe/cmdline, pre-seeding the synthetic
// Open(exe, 0) entry the spec requires to compensate for tracer
// start-lag. exeSize is the file size of exe at trace-start time, used as
// the synthetic entry's size.
func New(exe, comm, cmdline string, exeSize int64) *Log {
	l := &Log{
		Hash:      FingerprintOf(exe, cmdline),
		Exe:       exe,
		Comm:      comm,
		Cmdline:   cmdline,
		CreatedAt: time.Now().UTC(),
		FileMap:   make(map[string]int),
	}
	l.appendLocked(OpOpen, exe, 0, exeSize)
	return l
}

// FingerprintOf computes the artifact hash: a 64-bit FNV-1a over
// exe-path bytes followed by cmdline bytes (sequential writes, not XOR).
func FingerprintOf(exe, cmdline string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(exe))
	_, _ = h.Write([]byte(cmdline))
	return h.Sum64()
}

// HashString renders the fingerprint the way artifact filenames do:
// decimal, no padding.
func (l *Log) HashString() string {
	return strconv.FormatUint(l.Hash, 10)
}

// Add appends one observed I/O event. Safe for concurrent use; a trace is
// written to by exactly one tracer goroutine in practice, but the lock
// also guards against a concurrent Stop or Marshal call.
func (l *Log) Add(op Operation, path string, fd int, size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(op, path, fd, size)
}

func (l *Log) appendLocked(op Operation, path string, fd int, size int64) {
	idx, ok := l.FileMap[path]
	if !ok {
		idx = len(l.Files)
		l.FileMap[path] = idx
		l.Files = append(l.Files, path)
	}
	l.TraceLog = append(l.TraceLog, Entry{
		Timestamp: time.Now().UTC(),
		Operation: op,
		FileIndex: idx,
		FD:        fd,
		Size:      size,
	})
	l.AccumulatedSize += size
}

// Stop marks the trace as finished; no further Add calls are expected
// (callers that do append anyway simply extend a stopped trace — Stop is
// advisory bookkeeping, not a hard lock).
func (l *Log) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	l.TraceStoppedAt = &now
}

// ShouldPersist reports whether the trace meets the length/size floor
// required for TraceStore.put to accept it unconditionally (janitor's
// allow_truncate path bypasses this check).
func (l *Log) ShouldPersist() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.TraceLog) >= MinTraceLogLength && l.AccumulatedSize >= MinTraceLogPrefetchSizeBytes
}

// UniqueFiles returns the first-seen-ordered list of distinct file paths
// referenced by the trace.
func (l *Log) UniqueFiles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Files))
	copy(out, l.Files)
	return out
}
