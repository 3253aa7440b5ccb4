package service

import (
	"time"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/procmon"
)

// histogramSaveInterval bounds how often the hook persists the histogram
// to disk, independent of Janitor's own schedule, so a crash between
// housekeeping passes loses at most this much exec history.
const histogramSaveInterval = 10 * time.Minute

// histogramListener bumps HotHistogram on every observed Exec and
// periodically persists it, so the ranking PrimeCaches relies on survives
// a restart.
type histogramListener struct {
	histogram *hothistogram.Histogram
	statePath string
	lastSave  time.Time
}

func newHistogramListener(histogram *hothistogram.Histogram, statePath string) *histogramListener {
	return &histogramListener{histogram: histogram, statePath: statePath, lastSave: time.Now()}
}

func (l *histogramListener) Name() string { return "hothistogram" }

func (l *histogramListener) HandleInternalEvent(eventbus.Handle, eventbus.InternalEvent) error {
	return nil
}

func (l *histogramListener) HandleProcessEvent(_ eventbus.Handle, ev procmon.Event) error {
	if ev.Kind == procmon.KindExec && ev.Exe != "" {
		l.histogram.RecordExec(ev.Exe)
	}
	return nil
}

func (l *histogramListener) MainLoopHook(eventbus.Handle) error {
	if time.Since(l.lastSave) < histogramSaveInterval {
		return nil
	}
	l.lastSave = time.Now()
	if err := l.histogram.Save(l.statePath); err != nil {
		logging.For("hothistogram").Warn("failed to persist histogram", "error", err)
	}
	return nil
}
