// Package service is precached's composition root: it builds every
// component described by the daemon's modules and wires them onto the
// event bus and main loop.
//
// Grounded on original_source/src/manager.rs's Manager{plugin_manager,
// hook_manager} construction sequence (load config → build plugins in a
// fixed order → register on the hook/plugin manager → enter main loop)
// and on _examples/majorcontext-moat/cmd/moat/cli/daemon.go's
// construct-wire-start shape for a long-running server command.
package service

import (
	"context"
	"fmt"
	"os/user"
	"strconv"
	"time"

	"github.com/X3n0m0rph59/precached/internal/capabilities"
	"github.com/X3n0m0rph59/precached/internal/config"
	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/fstracer"
	"github.com/X3n0m0rph59/precached/internal/hothistogram"
	"github.com/X3n0m0rph59/precached/internal/inotifywatch"
	"github.com/X3n0m0rph59/precached/internal/iotrace"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/mainloop"
	"github.com/X3n0m0rph59/precached/internal/memorywatch"
	"github.com/X3n0m0rph59/precached/internal/prefetch"
	"github.com/X3n0m0rph59/precached/internal/procmon"
	"github.com/X3n0m0rph59/precached/internal/staticlists"
	"github.com/X3n0m0rph59/precached/internal/tracestore"
	"github.com/X3n0m0rph59/precached/internal/usersession"
)

// ControlSocketPath is spec.md's control-socket location.
const ControlSocketPath = "/run/precached/precached.sock"

// Daemon owns every long-lived component and the main loop driving them.
type Daemon struct {
	cfg *config.Config

	bus       *eventbus.Bus
	store     *tracestore.Store
	histogram *hothistogram.Histogram
	lists     *staticlists.Lists
	engine    *prefetch.Engine
	workers   *prefetch.Pool
	janitor   *housekeeper
	tracer    *fstracer.Manager
	procmon   *procmon.Monitor
	inotify   *inotifywatch.Watcher
	memwatch  *memorywatch.Watch
	usersess  *usersession.Tracker
	control   *control.Server
	loop      *mainloop.Loop

	cfgPath string
}

// New constructs every component described by the config loaded from
// cfgPath, but does not start any goroutines or drop privileges; call Run
// to do that. cfgPath is retained so a later Reload re-reads the same
// file.
func New(cfgPath string) (*Daemon, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	store, err := tracestore.Open(cfg.IOTraceAbsDir(), cfg.CatalogDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening trace store: %w", err)
	}

	histogram, err := hothistogram.Load(cfg.HotApplicationsStatePath())
	if err != nil {
		logging.For("service").Warn("starting with an empty hot-applications histogram", "error", err)
		histogram = hothistogram.New()
	}

	lists := staticlists.New(cfg.Whitelist, cfg.Blacklist, cfg.ProgramWhitelist, cfg.ProgramBlacklist)

	engine := prefetch.New(prefetch.Config{
		NumPrefetcherThreads: 4,
		WithMlock:            false,
		Histogram:            histogram,
	})

	tracer := fstracer.New(lists, store, fstracer.DefaultTraceTimeout)

	proc, err := procmon.New()
	if err != nil {
		return nil, fmt.Errorf("starting process monitor: %w", err)
	}

	inotify, err := inotifywatch.New(cfgPath, cfg.IOTraceAbsDir())
	if err != nil {
		return nil, fmt.Errorf("starting inotify watcher: %w", err)
	}

	memwatch := memorywatch.New(memorywatch.DefaultThresholds())
	usersess := usersession.New()

	bus := eventbus.New()
	jan := newHousekeeper(store, histogram)
	bus.Register(jan)
	bus.Register(fstracer.NewListener(tracer))
	bus.Register(newHistogramListener(histogram, cfg.HotApplicationsStatePath()))

	workers := prefetch.NewPool(cfg.ResolvedWorkerThreads, 4) // WORKER_THREAD_NICENESS
	scheduler := mainloop.NewTaskScheduler(workers)
	loop := mainloop.New(mainloop.Config{
		Bus:         bus,
		ProcMon:     proc,
		Inotify:     inotify,
		MemWatch:    memwatch,
		UserSession: usersess,
		Scheduler:   scheduler,
	})

	ctl := control.NewServer(ControlSocketPath)

	d := &Daemon{
		cfg:       cfg,
		bus:       bus,
		store:     store,
		histogram: histogram,
		lists:     lists,
		engine:    engine,
		workers:   workers,
		janitor:   jan,
		tracer:    tracer,
		procmon:   proc,
		inotify:   inotify,
		memwatch:  memwatch,
		usersess:  usersess,
		control:   ctl,
		loop:      loop,
		cfgPath:   cfgPath,
	}
	d.registerControlHandlers()
	return d, nil
}

// DropPrivileges resolves cfg.User/cfg.Group and switches the process to
// that identity, retaining only CAP_DAC_READ_SEARCH and CAP_SYS_PTRACE.
// Must be called before Run, on the goroutine that
// will become the main loop, with the OS thread locked by the caller.
func (d *Daemon) DropPrivileges() error {
	u, err := user.Lookup(d.cfg.User)
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", d.cfg.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parsing uid for %q: %w", d.cfg.User, err)
	}

	gid := uid
	if d.cfg.Group != "" {
		g, err := user.LookupGroup(d.cfg.Group)
		if err != nil {
			return fmt.Errorf("looking up group %q: %w", d.cfg.Group, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("parsing gid for %q: %w", d.cfg.Group, err)
		}
	} else {
		gid, err = strconv.Atoi(u.Gid)
		if err != nil {
			return fmt.Errorf("parsing gid for %q: %w", d.cfg.User, err)
		}
	}

	return capabilities.DropPrivileges(uid, gid, capabilities.CAP_DAC_READ_SEARCH, capabilities.CAP_SYS_PTRACE)
}

// Run starts every component's background goroutines, begins tracing
// (best-effort) and drives the main loop until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.tracer.Start(); err != nil {
		return fmt.Errorf("starting file-I/O tracer: %w", err)
	}
	if err := d.control.Start(); err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}

	logging.For("service").Info("precached daemon starting",
		"state_dir", d.cfg.StateDir, "iotrace_dir", d.cfg.IOTraceAbsDir())

	err := d.loop.Run(ctx)

	d.shutdown()
	return err
}

func (d *Daemon) shutdown() {
	log := logging.For("service")

	_ = d.control.Stop()
	d.tracer.Stop()
	_ = d.inotify.Close()
	_ = d.procmon.Close()
	d.engine.Shutdown()
	d.workers.Close()

	if err := d.histogram.Save(d.cfg.HotApplicationsStatePath()); err != nil {
		log.Warn("failed to persist hot-applications histogram on shutdown", "error", err)
	}
	if err := d.store.Close(); err != nil {
		log.Warn("failed to close trace store on shutdown", "error", err)
	}
}

// PrimeCaches replays the top-ranked histogram entries through the
// prefetch engine, resolving each entry's trace artifact from TraceStore
// by its exe path through the catalog's exe column (GetByExe), not by
// recomputing a fingerprint — traces are saved keyed on their real,
// non-empty cmdline, so a fingerprint over exe+"" would almost never hit.
func (d *Daemon) PrimeCaches(ctx context.Context) prefetch.Report {
	return d.engine.ReplayAll(ctx, func(exePath string) (*iotrace.Log, bool) {
		log, err := d.store.GetByExe(exePath)
		if err != nil || log == nil {
			return nil, false
		}
		return log, true
	})
}
