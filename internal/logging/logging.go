// Package logging provides the daemon's structured logger: a stderr sink
// for operators and, when Options.DebugDir is set, a JSON debug file sink
// for post-mortem analysis, fanned out through a single slog.Logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Options configures Init.
type Options struct {
	// Verbose enables debug-level output on the stderr sink.
	Verbose bool
	// JSONFormat renders the stderr sink as JSON instead of text.
	JSONFormat bool
	// DebugDir, when non-empty, receives a rotating JSON debug log
	// regardless of Verbose. Pass "" to disable the file sink entirely
	// (used by short-lived CLI invocations).
	DebugDir string
	// RetentionDays bounds how long debug log files are kept; 0 disables
	// cleanup.
	RetentionDays int
	// Stderr overrides the stderr writer, for tests.
	Stderr io.Writer
}

var (
	mu      sync.Mutex
	logger  = slog.New(slog.NewTextHandler(os.Stderr, nil))
	fileOut io.Closer
)

// Init installs the process-wide logger described by opts. Safe to call
// more than once (e.g. on ConfigurationReloaded); the previous file sink,
// if any, is closed.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	stderrLevel := slog.LevelInfo
	if opts.Verbose {
		stderrLevel = slog.LevelDebug
	}

	var stderrHandler slog.Handler
	if opts.JSONFormat {
		stderrHandler = slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: stderrLevel})
	} else {
		stderrHandler = slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: stderrLevel})
	}

	handlers := []slog.Handler{stderrHandler}

	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}

	if opts.DebugDir != "" {
		if err := os.MkdirAll(opts.DebugDir, 0o750); err != nil {
			return fmt.Errorf("creating debug log directory %q: %w", opts.DebugDir, err)
		}
		if opts.RetentionDays > 0 {
			if err := Cleanup(opts.DebugDir, opts.RetentionDays); err != nil {
				// Retention failures are not fatal to logger init.
				slog.Default().Warn("log retention cleanup failed", "dir", opts.DebugDir, "error", err)
			}
		}
		name := fmt.Sprintf("precached-%s.log", time.Now().UTC().Format("20060102"))
		f, err := os.OpenFile(filepath.Join(opts.DebugDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		fileOut = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger = slog.New(&multiHandler{handlers: handlers})
	slog.SetDefault(logger)
	return nil
}

// multiHandler fans a single log record out to every wrapped handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// For attaches a component name to every record logged through the
// returned logger, e.g. logging.For("procmon").Info("subscribed").
func For(component string) *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	return l.With("component", component)
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }

func get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Cleanup removes debug log files in dir older than retentionDays.
func Cleanup(dir string, retentionDays int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
