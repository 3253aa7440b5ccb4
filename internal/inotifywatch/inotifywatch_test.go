package inotifywatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
)

func waitForEvent(t *testing.T, w *Watcher, kind eventbus.InternalEventKind) eventbus.InternalEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range w.Drain() {
			if ev.Kind == kind {
				return ev
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event %s", kind)
	return eventbus.InternalEvent{}
}

func TestConfigFileWriteEmitsConfigFileChanged(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "precached.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("initial"), 0o644))

	traceDir := t.TempDir()

	w, err := New(configPath, traceDir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(configPath, []byte("changed"), 0o644))

	ev := waitForEvent(t, w, eventbus.EventConfigFileChanged)
	require.Equal(t, configPath, ev.Path)
}

func TestTraceCreateEmitsIoTraceLogCreated(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "precached.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o644))
	traceDir := t.TempDir()

	w, err := New(configPath, traceDir)
	require.NoError(t, err)
	defer w.Close()

	tracePath := filepath.Join(traceDir, "123.trace")
	require.NoError(t, os.WriteFile(tracePath, []byte("x"), 0o644))

	ev := waitForEvent(t, w, eventbus.EventIoTraceLogCreated)
	require.Equal(t, tracePath, ev.Path)
}

func TestTraceRemoveEmitsIoTraceLogRemoved(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "precached.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o644))
	traceDir := t.TempDir()
	tracePath := filepath.Join(traceDir, "123.trace")
	require.NoError(t, os.WriteFile(tracePath, []byte("x"), 0o644))

	w, err := New(configPath, traceDir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(tracePath))

	ev := waitForEvent(t, w, eventbus.EventIoTraceLogRemoved)
	require.Equal(t, tracePath, ev.Path)
}

func TestNonTraceFileInTraceDirIsIgnored(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "precached.conf")
	require.NoError(t, os.WriteFile(configPath, []byte("x"), 0o644))
	traceDir := t.TempDir()

	w, err := New(configPath, traceDir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(traceDir, "stray.tmp"), []byte("x"), 0o644))
	// Also produce a real event so Drain has something to observe after a
	// short wait, proving the stray file genuinely produced nothing.
	require.NoError(t, os.WriteFile(filepath.Join(traceDir, "456.trace"), []byte("x"), 0o644))

	ev := waitForEvent(t, w, eventbus.EventIoTraceLogCreated)
	require.Equal(t, filepath.Join(traceDir, "456.trace"), ev.Path)
}
