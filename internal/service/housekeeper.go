package service

import (
	"time"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/janitor"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/procmon"
	"github.com/X3n0m0rph59/precached/internal/tracestore"
)

// housekeepingDelayAfterStartup and minHousekeepingInterval are spec.md's
// HOUSEKEEPING_DELAY_AFTER_STARTUP_SECS and MIN_HOUSEKEEPING_INTERVAL_SECS.
const (
	housekeepingDelayAfterStartup = 300 * time.Second
	minHousekeepingInterval       = 3600 * time.Second
)

// housekeeper adapts janitor.Janitor to the event bus: it runs on its own
// schedule via MainLoopHook and on-demand in response to an explicit
// DoHousekeeping event (the control socket's DoHousekeeping command feeds
// one in via Handle.QueueInternalEvent).
type housekeeper struct {
	jan       *janitor.Janitor
	startedAt time.Time
	lastRun   time.Time
}

func newHousekeeper(store *tracestore.Store, histogram *hothistogram.Histogram) *housekeeper {
	return &housekeeper{
		jan:       janitor.New(store, histogram),
		startedAt: time.Now(),
	}
}

func (h *housekeeper) Name() string { return "janitor" }

func (h *housekeeper) HandleInternalEvent(_ eventbus.Handle, ev eventbus.InternalEvent) error {
	if ev.Kind == eventbus.EventDoHousekeeping {
		h.run()
	}
	return nil
}

func (h *housekeeper) HandleProcessEvent(eventbus.Handle, procmon.Event) error { return nil }

func (h *housekeeper) MainLoopHook(eventbus.Handle) error {
	now := time.Now()
	if now.Sub(h.startedAt) < housekeepingDelayAfterStartup {
		return nil
	}
	if !h.lastRun.IsZero() && now.Sub(h.lastRun) < minHousekeepingInterval {
		return nil
	}
	h.run()
	return nil
}

func (h *housekeeper) run() {
	h.lastRun = time.Now()
	report := h.jan.Run()
	logging.For("janitor").Info("housekeeping pass complete",
		"removed", report.Removed, "optimized", report.Optimized,
		"skipped", report.Skipped, "errors", report.Errors)
}
