// Package eventbus implements the ordered-dispatch hub that decouples
// ProcMon, InotifyWatcher, MemoryWatch and the daemon's other sources from
// the listeners that react to them.
//
// Grounded on original_source/src/events.rs (the tagged InternalEvent enum)
// and original_source/src/manager.rs's HookManager+PluginManager dispatch
// loop (insertion-order iteration, deferred requeue of events raised mid-
// dispatch).
package eventbus

import "github.com/X3n0m0rph59/precached/internal/procmon"

// InternalEventKind tags one variant of InternalEvent.
type InternalEventKind string

const (
	EventPing                        InternalEventKind = "ping"
	EventStartup                     InternalEventKind = "startup"
	EventShutdown                    InternalEventKind = "shutdown"
	EventConfigFileChanged            InternalEventKind = "config_file_changed"
	EventIoTraceLogCreated            InternalEventKind = "iotrace_log_created"
	EventIoTraceLogRemoved            InternalEventKind = "iotrace_log_removed"
	EventFreeMemoryLowWatermark       InternalEventKind = "free_memory_low_watermark"
	EventFreeMemoryHighWatermark      InternalEventKind = "free_memory_high_watermark"
	EventAvailableMemoryLowWatermark  InternalEventKind = "available_memory_low_watermark"
	EventAvailableMemoryHighWatermark InternalEventKind = "available_memory_high_watermark"
	EventAvailableMemoryCritical      InternalEventKind = "available_memory_critical_watermark"
	EventMemoryFreed                  InternalEventKind = "memory_freed"
	EventSystemIsSwapping             InternalEventKind = "system_is_swapping"
	EventSystemRecoveredFromSwap      InternalEventKind = "system_recovered_from_swap"
	EventEnterIdlePeriod              InternalEventKind = "enter_idle_period"
	EventLeaveIdlePeriod              InternalEventKind = "leave_idle_period"
	EventUserLogin                    InternalEventKind = "user_login"
	EventUserLogout                   InternalEventKind = "user_logout"

	EventPrimeCaches           InternalEventKind = "prime_caches"
	EventDoHousekeeping        InternalEventKind = "do_housekeeping"
	EventOptimizeIOTraceLog    InternalEventKind = "optimize_iotrace_log"
	EventGatherStatsAndMetrics InternalEventKind = "gather_stats_and_metrics"
	EventConfigurationReloaded InternalEventKind = "configuration_reloaded"
)

// InternalEvent is the bus's non-process-lifecycle event type.
type InternalEvent struct {
	Kind InternalEventKind
	Path string // for ConfigFileChanged / IoTraceLogCreated|Removed
	User string // for UserLogin/UserLogout
}

// Listener is anything the bus can dispatch events to. HandleInternalEvent
// and HandleProcessEvent receive a Handle rather than a *Bus pointer so a
// listener can queue follow-up events without retaining a back-pointer
// across ticks (spec's no-cyclic-ownership invariant).
type Listener interface {
	Name() string
	HandleInternalEvent(h Handle, ev InternalEvent) error
	HandleProcessEvent(h Handle, ev procmon.Event) error
}

// MainLoopHook is the optional, additional interface a Listener implements
// to receive a once-per-tick callback irrespective of any event.
type MainLoopHook interface {
	MainLoopHook(h Handle) error
}
