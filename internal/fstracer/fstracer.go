// Package fstracer captures per-process file I/O into an iotrace.Log for
// the IO_TRACE_TIME_SECS window following an exec, then hands the
// completed log to TraceStore.
//
// Grounded on _examples/majorcontext-moat/internal/trace/tracer_linux.go's
// backend/portable split (a platform-specific event source feeding a
// portable accumulator) and on original_source/src/trace_log/mod.rs's
// one-tracer-per-pid policy with wall-clock expiry.
package fstracer

import (
	"os"
	"sync"
	"time"

	"github.com/X3n0m0rph59/precached/internal/iotrace"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/staticlists"
	"github.com/X3n0m0rph59/precached/internal/tracestore"
)

// DefaultTraceTimeout is spec.md's IO_TRACE_TIME_SECS.
const DefaultTraceTimeout = 12 * time.Second

// backend is the platform-specific event source a Manager drains. The
// Linux implementation (fanotify_linux.go) marks mount points and
// dispatches observed opens to the owning Manager; the portable stub
// (fanotify_other.go) is a no-op so this package builds everywhere.
type backend interface {
	start(m *Manager) error
	stop()
}

type activeTrace struct {
	log    *iotrace.Log
	exe    string
	timer  *time.Timer
	finish func()
}

// Manager enforces the one-in-flight-trace-per-pid policy and owns the
// platform backend that actually observes file I/O.
type Manager struct {
	lists *staticlists.Lists
	store *tracestore.Store
	timeout time.Duration
	backend backend

	mu     sync.Mutex
	active map[int]*activeTrace
}

// New creates a Manager. timeout<=0 uses DefaultTraceTimeout.
func New(lists *staticlists.Lists, store *tracestore.Store, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTraceTimeout
	}
	m := &Manager{
		lists:   lists,
		store:   store,
		timeout: timeout,
		active:  make(map[int]*activeTrace),
	}
	m.backend = newBackend()
	return m
}

// Start wires the platform backend. A failure here is logged and leaves
// the Manager inert (HandleExec becomes a no-op source of traces, but
// process tracking elsewhere is unaffected), per spec.md's "never blocks
// process progression" contract.
func (m *Manager) Start() error {
	if err := m.backend.start(m); err != nil {
		logging.For("fstracer").Warn("tracer backend unavailable, file-I/O tracing disabled", "error", err)
	}
	return nil
}

// Stop releases the backend and abandons any in-flight traces without
// persisting them.
func (m *Manager) Stop() {
	m.backend.stop()
	m.mu.Lock()
	for pid, t := range m.active {
		t.timer.Stop()
		delete(m.active, pid)
	}
	m.mu.Unlock()
}

// HandleExec begins tracing pid if it isn't already being traced and its
// executable passes the program allow/deny lists. Re-exec events for a
// pid already under trace are ignored, per policy.
func (m *Manager) HandleExec(pid int, exePath, comm, cmdline string) {
	if !m.lists.AllowProgram(exePath) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[pid]; exists {
		return
	}

	var exeSize int64
	if fi, err := os.Stat(exePath); err == nil {
		exeSize = fi.Size()
	}

	log := iotrace.New(exePath, comm, cmdline, exeSize)
	t := &activeTrace{log: log, exe: exePath}
	t.finish = func() { m.finish(pid) }
	t.timer = time.AfterFunc(m.timeout, t.finish)
	m.active[pid] = t
}

// HandleExit ends tracing early if pid exits before the trace window
// expires.
func (m *Manager) HandleExit(pid int) {
	m.finish(pid)
}

// observe is called by the backend for every file-I/O event it attributes
// to pid. Entries for paths rejected by the file blacklist are dropped
// before being appended.
func (m *Manager) observe(pid int, op iotrace.Operation, path string, fd int, size int64) {
	if !m.lists.AllowFile(path) {
		return
	}
	m.mu.Lock()
	t, ok := m.active[pid]
	m.mu.Unlock()
	if !ok {
		return
	}
	t.log.Add(op, path, fd, size)
}

func (m *Manager) finish(pid int) {
	m.mu.Lock()
	t, ok := m.active[pid]
	if ok {
		delete(m.active, pid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	t.timer.Stop()
	t.log.Stop()

	if !t.log.ShouldPersist() {
		return
	}
	if err := m.store.Put(t.log, false); err != nil {
		logging.For("fstracer").Warn("failed to persist trace", "exe", t.exe, "error", err)
	}
}
