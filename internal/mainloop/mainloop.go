// Package mainloop implements the daemon's single-threaded cooperative
// scheduler: the per-tick sequence that drains every event source and
// dispatches to the event bus.
//
// Grounded on _examples/majorcontext-moat/internal/trace/tracer_linux.go's
// poll-loop idiom (ticker + select over done channel) and on
// original_source/src/main.rs's main-loop step sequence (drain ProcMon →
// drain InotifyWatcher → drain MemoryWatch → drain internal event queue →
// main_loop_hook → TaskScheduler → sleep).
package mainloop

import (
	"context"
	"time"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/inotifywatch"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/memorywatch"
	"github.com/X3n0m0rph59/precached/internal/procmon"
	"github.com/X3n0m0rph59/precached/internal/usersession"
)

// DefaultTickInterval is spec.md's EVENT_THREAD_TIMEOUT_MILLIS.
const DefaultTickInterval = 2 * time.Second

// ProcSource is the narrow capability MainLoop needs from ProcMon, so this
// package has no Linux build-tag dependency even though the production
// ProcMon implementation does.
type ProcSource interface {
	Events() <-chan procmon.Event
}

// Loop is the cooperative, single-threaded scheduler tying ProcMon,
// InotifyWatcher, MemoryWatch, UserSession and the event bus together.
type Loop struct {
	bus          *eventbus.Bus
	proc         ProcSource
	inotify      *inotifywatch.Watcher
	memwatch     *memorywatch.Watch
	usersession  *usersession.Tracker
	scheduler    *TaskScheduler
	tickInterval time.Duration
}

// Config wires a Loop's collaborators. Any field may be nil/zero to omit
// that source (useful in tests and on platforms where it is unavailable).
type Config struct {
	Bus          *eventbus.Bus
	ProcMon      ProcSource
	Inotify      *inotifywatch.Watcher
	MemWatch     *memorywatch.Watch
	UserSession  *usersession.Tracker
	Scheduler    *TaskScheduler
	TickInterval time.Duration
}

// New builds a Loop from cfg.
func New(cfg Config) *Loop {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Loop{
		bus:          cfg.Bus,
		proc:         cfg.ProcMon,
		inotify:      cfg.Inotify,
		memwatch:     cfg.MemWatch,
		usersession:  cfg.UserSession,
		scheduler:    cfg.Scheduler,
		tickInterval: interval,
	}
}

// Run drives the cooperative loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	logging.For("mainloop").Info("main loop starting", "tick_interval", l.tickInterval)
	l.bus.Dispatch([]eventbus.InternalEvent{{Kind: eventbus.EventStartup}})

	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.bus.Dispatch([]eventbus.InternalEvent{{Kind: eventbus.EventShutdown}})
			return ctx.Err()
		case <-ticker.C:
			l.Tick(time.Now())
		}
	}
}

// Tick runs exactly one iteration of the 7-step sequence. Exported so
// tests can drive single ticks deterministically instead of racing a
// ticker.
func (l *Loop) Tick(now time.Time) {
	log := logging.For("mainloop")

	// 1. Drain ProcMon.
	if l.proc != nil {
		l.drainProcMon()
	}

	var events []eventbus.InternalEvent

	// 2. Drain InotifyWatcher.
	if l.inotify != nil {
		events = append(events, l.inotify.Drain()...)
	}

	// 3. Drain MemoryWatch.
	if l.memwatch != nil {
		memEvents, err := l.memwatch.Poll(now)
		if err != nil {
			log.Warn("memory watch poll failed", "error", err)
		} else {
			events = append(events, memEvents...)
		}
	}

	// UserSession poll folds into the same per-tick drain, ahead of the
	// generic plugin main_loop_hook step since its events feed the same
	// dispatch batch as Inotify/MemoryWatch's.
	if l.usersession != nil {
		userEvents, err := l.usersession.Poll()
		if err != nil {
			log.Warn("user session poll failed", "error", err)
		} else {
			events = append(events, userEvents...)
		}
	}

	events = append(events, eventbus.InternalEvent{Kind: eventbus.EventPing})

	// 4. Drain internal event queue + dispatch steps 2-4's batch together.
	l.bus.Dispatch(events)

	// 5. Call main_loop_hook on every plugin.
	l.bus.CallMainLoopHooks()

	// 6. Run TaskScheduler backlog.
	if l.scheduler != nil {
		l.scheduler.RunJobs()
	}

	// 7. (sleep) handled by the ticker in Run.
}

func (l *Loop) drainProcMon() {
	for {
		select {
		case ev, ok := <-l.proc.Events():
			if !ok {
				return
			}
			l.bus.DispatchProcessEvent(ev)
		default:
			return
		}
	}
}
