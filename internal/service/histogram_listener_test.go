package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/procmon"
)

func TestHistogramListenerRecordsOnExec(t *testing.T) {
	h := hothistogram.New()
	l := newHistogramListener(h, filepath.Join(t.TempDir(), "hot.state"))

	err := l.HandleProcessEvent(eventbus.Handle{}, procmon.Event{Kind: procmon.KindExec, Exe: "/usr/bin/foo"})
	require.NoError(t, err)
	require.Equal(t, int64(1), h.Count("/usr/bin/foo"))
}

func TestHistogramListenerIgnoresNonExecEvents(t *testing.T) {
	h := hothistogram.New()
	l := newHistogramListener(h, filepath.Join(t.TempDir(), "hot.state"))

	require.NoError(t, l.HandleProcessEvent(eventbus.Handle{}, procmon.Event{Kind: procmon.KindExit, Exe: "/usr/bin/foo"}))
	require.Equal(t, int64(0), h.Count("/usr/bin/foo"))
}

func TestHistogramListenerIgnoresEmptyExePath(t *testing.T) {
	h := hothistogram.New()
	l := newHistogramListener(h, filepath.Join(t.TempDir(), "hot.state"))

	require.NoError(t, l.HandleProcessEvent(eventbus.Handle{}, procmon.Event{Kind: procmon.KindExec}))
	require.Equal(t, 0, len(h.Ranked()))
}

func TestHistogramListenerPersistsAfterInterval(t *testing.T) {
	h := hothistogram.New()
	h.RecordExec("/usr/bin/foo")
	path := filepath.Join(t.TempDir(), "hot.state")
	l := newHistogramListener(h, path)
	l.lastSave = time.Now().Add(-histogramSaveInterval - time.Second)

	require.NoError(t, l.MainLoopHook(eventbus.Handle{}))

	loaded, err := hothistogram.Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Count("/usr/bin/foo"))
}

func TestHistogramListenerSkipsSaveBeforeInterval(t *testing.T) {
	h := hothistogram.New()
	path := filepath.Join(t.TempDir(), "hot.state")
	l := newHistogramListener(h, path)

	require.NoError(t, l.MainLoopHook(eventbus.Handle{}))

	loaded, err := hothistogram.Load(path)
	require.NoError(t, err)
	require.Equal(t, 0, len(loaded.Ranked())) // never saved: Load falls back to an empty histogram
}
