package memorywatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
)

func writeMeminfo(t *testing.T, free, available, swapTotal, swapFree uint64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "meminfo")
	content := ""
	content += "MemTotal:        8000000 kB\n"
	content += "MemFree:         " + itoa(free) + " kB\n"
	content += "MemAvailable:    " + itoa(available) + " kB\n"
	content += "SwapTotal:       " + itoa(swapTotal) + " kB\n"
	content += "SwapFree:        " + itoa(swapFree) + " kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func hasKind(events []eventbus.InternalEvent, kind eventbus.InternalEventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestFreeMemoryLowWatermarkEdge(t *testing.T) {
	th := DefaultThresholds()
	w := New(th)
	now := time.Now()

	path := writeMeminfo(t, th.FreeMemoryLowerKiB+1, th.AvailableMemoryUpperKiB+1, 0, 0)
	events, err := w.WithProcPath(path).Poll(now)
	require.NoError(t, err)
	require.False(t, hasKind(events, eventbus.EventFreeMemoryLowWatermark))

	path = writeMeminfo(t, th.FreeMemoryLowerKiB-1, th.AvailableMemoryUpperKiB+1, 0, 0)
	events, err = w.WithProcPath(path).Poll(now)
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventFreeMemoryLowWatermark))
}

func TestFreeMemoryWatermarkDoesNotFlapWithinHysteresisBand(t *testing.T) {
	th := DefaultThresholds()
	w := New(th)
	now := time.Now()

	low := writeMeminfo(t, th.FreeMemoryLowerKiB-1, th.AvailableMemoryUpperKiB+1, 0, 0)
	events, err := w.WithProcPath(low).Poll(now)
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventFreeMemoryLowWatermark))

	// A value between lower and upper must not re-fire either edge.
	mid := writeMeminfo(t, th.FreeMemoryLowerKiB+1, th.AvailableMemoryUpperKiB+1, 0, 0)
	events, err = w.WithProcPath(mid).Poll(now)
	require.NoError(t, err)
	require.False(t, hasKind(events, eventbus.EventFreeMemoryLowWatermark))
	require.False(t, hasKind(events, eventbus.EventFreeMemoryHighWatermark))
}

func TestAvailableMemoryCriticalFiresOnce(t *testing.T) {
	th := DefaultThresholds()
	w := New(th)
	now := time.Now()

	path := writeMeminfo(t, th.FreeMemoryUpperKiB+1, th.AvailableMemoryCritKiB-1, 0, 0)
	events, err := w.WithProcPath(path).Poll(now)
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventAvailableMemoryCritical))

	events, err = w.WithProcPath(path).Poll(now.Add(time.Second))
	require.NoError(t, err)
	require.False(t, hasKind(events, eventbus.EventAvailableMemoryCritical))
}

func TestSwapDebounceRequiresRecoveryWindow(t *testing.T) {
	th := DefaultThresholds()
	th.SwapRecoveryWindow = 5 * time.Second
	w := New(th)
	now := time.Now()

	swapping := writeMeminfo(t, th.FreeMemoryUpperKiB+1, th.AvailableMemoryUpperKiB+1, 1000, 500)
	events, err := w.WithProcPath(swapping).Poll(now)
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventSystemIsSwapping))

	recovered := writeMeminfo(t, th.FreeMemoryUpperKiB+1, th.AvailableMemoryUpperKiB+1, 1000, 1000)
	events, err = w.WithProcPath(recovered).Poll(now.Add(time.Second))
	require.NoError(t, err)
	require.False(t, hasKind(events, eventbus.EventSystemRecoveredFromSwap))

	events, err = w.WithProcPath(recovered).Poll(now.Add(6 * time.Second))
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventSystemRecoveredFromSwap))
}

func TestIdlePeriodEntersAfterSustainedAvailability(t *testing.T) {
	th := DefaultThresholds()
	th.IdlePeriodWindow = 5 * time.Second
	w := New(th)
	now := time.Now()

	idle := writeMeminfo(t, th.FreeMemoryUpperKiB+1, th.AvailableMemoryUpperKiB+1, 0, 0)
	events, err := w.WithProcPath(idle).Poll(now)
	require.NoError(t, err)
	require.False(t, hasKind(events, eventbus.EventEnterIdlePeriod))

	events, err = w.WithProcPath(idle).Poll(now.Add(6 * time.Second))
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventEnterIdlePeriod))

	busy := writeMeminfo(t, th.FreeMemoryUpperKiB+1, th.AvailableMemoryLowerKiB, 0, 0)
	events, err = w.WithProcPath(busy).Poll(now.Add(7 * time.Second))
	require.NoError(t, err)
	require.True(t, hasKind(events, eventbus.EventLeaveIdlePeriod))
}

func TestReadMeminfoMissingFile(t *testing.T) {
	w := New(DefaultThresholds()).WithProcPath("/does/not/exist")
	_, err := w.Poll(time.Now())
	require.Error(t, err)
}
