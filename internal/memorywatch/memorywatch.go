// Package memorywatch samples /proc/meminfo and emits edge-triggered
// watermark, swap and idle-period events.
//
// Grounded on original_source/src/hooks/vmstat_monitor.rs for the
// hysteresis/watermark/debounce state machine, and on
// _examples/majorcontext-moat/internal/trace/tracer_linux.go for the
// poll-and-diff idiom used to turn a /proc snapshot into edge events.
package memorywatch

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
)

// Thresholds configures the watermark and debounce values. Units are
// kibibytes for memory thresholds, matching /proc/meminfo's native unit.
type Thresholds struct {
	FreeMemoryLowerKiB      uint64
	FreeMemoryUpperKiB      uint64
	AvailableMemoryLowerKiB uint64
	AvailableMemoryUpperKiB uint64
	AvailableMemoryCritKiB  uint64

	SwapRecoveryWindow    time.Duration
	MemFreedRecoveryWindow time.Duration
	IdlePeriodWindow      time.Duration
}

// DefaultThresholds mirrors the conservative defaults
// original_source/src/constants.rs ships (as percentages of a typical
// desktop's memory, rendered here in absolute KiB for a 8 GiB baseline).
// precached.conf has no threshold settings; the daemon uses these as is.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FreeMemoryLowerKiB:      512 * 1024,
		FreeMemoryUpperKiB:      1024 * 1024,
		AvailableMemoryLowerKiB: 768 * 1024,
		AvailableMemoryUpperKiB: 1536 * 1024,
		AvailableMemoryCritKiB:  256 * 1024,
		SwapRecoveryWindow:      5 * time.Second,
		MemFreedRecoveryWindow:  5 * time.Second,
		IdlePeriodWindow:        5 * time.Second,
	}
}

// Snapshot is one parsed /proc/meminfo sample, fields in KiB as reported.
type Snapshot struct {
	MemFree      uint64
	MemAvailable uint64
	SwapTotal    uint64
	SwapFree     uint64
}

func (s Snapshot) swapUsed() uint64 {
	if s.SwapTotal == 0 {
		return 0
	}
	return s.SwapTotal - s.SwapFree
}

// Watch holds the debounced state machine between successive Poll calls.
type Watch struct {
	thresholds Thresholds
	procPath   string

	freeLow      bool
	availLow     bool
	availHigh    bool
	availCritRaised bool
	swapping     bool

	lastFree       uint64
	swappingSince  time.Time
	memFreedSince  time.Time
	idleSince      time.Time
	inIdle         bool
	haveLast       bool
}

// New builds a Watch reading /proc/meminfo by default; override procPath
// in tests.
func New(thresholds Thresholds) *Watch {
	return &Watch{thresholds: thresholds, procPath: "/proc/meminfo"}
}

// WithProcPath overrides the meminfo path read, for testing.
func (w *Watch) WithProcPath(path string) *Watch {
	w.procPath = path
	return w
}

// Poll reads one /proc/meminfo snapshot and returns any edge-triggered
// events the transition from the previous snapshot produced. now is passed
// in rather than read from time.Now so callers (and tests) control the
// debounce clock explicitly.
func (w *Watch) Poll(now time.Time) ([]eventbus.InternalEvent, error) {
	snap, err := readMeminfo(w.procPath)
	if err != nil {
		return nil, err
	}
	return w.observe(snap, now), nil
}

func (w *Watch) observe(snap Snapshot, now time.Time) []eventbus.InternalEvent {
	var events []eventbus.InternalEvent
	t := w.thresholds

	// Free memory watermark, hysteresis between lower/upper thresholds.
	switch {
	case !w.freeLow && snap.MemFree <= t.FreeMemoryLowerKiB:
		w.freeLow = true
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventFreeMemoryLowWatermark})
	case w.freeLow && snap.MemFree >= t.FreeMemoryUpperKiB:
		w.freeLow = false
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventFreeMemoryHighWatermark})
	}

	// Available memory watermark, hysteresis plus a one-shot critical edge.
	switch {
	case !w.availLow && snap.MemAvailable <= t.AvailableMemoryLowerKiB:
		w.availLow = true
		w.availHigh = false
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventAvailableMemoryLowWatermark})
	case w.availLow && snap.MemAvailable >= t.AvailableMemoryUpperKiB:
		w.availLow = false
		w.availHigh = true
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventAvailableMemoryHighWatermark})
	}
	if snap.MemAvailable <= t.AvailableMemoryCritKiB {
		if !w.availCritRaised {
			w.availCritRaised = true
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventAvailableMemoryCritical})
		}
	} else {
		w.availCritRaised = false
	}

	// Memory-freed edge: a jump upward in MemFree held for the debounce
	// window counts as one MemoryFreed event.
	if w.haveLast && snap.MemFree > w.lastFree {
		if w.memFreedSince.IsZero() {
			w.memFreedSince = now
		}
		if now.Sub(w.memFreedSince) >= t.MemFreedRecoveryWindow {
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventMemoryFreed})
			w.memFreedSince = time.Time{}
		}
	} else {
		w.memFreedSince = time.Time{}
	}

	// Swap debounce: SwapRecoveryWindow of zero swap usage before declaring
	// recovery, to avoid flapping on a single transient swap-in.
	usingSwap := snap.swapUsed() > 0
	switch {
	case usingSwap && !w.swapping:
		w.swapping = true
		w.swappingSince = time.Time{}
		events = append(events, eventbus.InternalEvent{Kind: eventbus.EventSystemIsSwapping})
	case !usingSwap && w.swapping:
		if w.swappingSince.IsZero() {
			w.swappingSince = now
		}
		if now.Sub(w.swappingSince) >= t.SwapRecoveryWindow {
			w.swapping = false
			w.swappingSince = time.Time{}
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventSystemRecoveredFromSwap})
		}
	default:
		w.swappingSince = time.Time{}
	}

	// Idle period: available memory comfortably above the upper threshold,
	// sustained for IdlePeriodWindow, marks the system idle; any drop below
	// upper leaves idle immediately.
	if snap.MemAvailable >= t.AvailableMemoryUpperKiB {
		if w.idleSince.IsZero() {
			w.idleSince = now
		}
		if !w.inIdle && now.Sub(w.idleSince) >= t.IdlePeriodWindow {
			w.inIdle = true
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventEnterIdlePeriod})
		}
	} else {
		if w.inIdle {
			w.inIdle = false
			events = append(events, eventbus.InternalEvent{Kind: eventbus.EventLeaveIdlePeriod})
		}
		w.idleSince = time.Time{}
	}

	w.lastFree = snap.MemFree
	w.haveLast = true
	return events
}

func readMeminfo(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()

	var snap Snapshot
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "MemFree":
			snap.MemFree = value
		case "MemAvailable":
			snap.MemAvailable = value
		case "SwapTotal":
			snap.SwapTotal = value
		case "SwapFree":
			snap.SwapFree = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
