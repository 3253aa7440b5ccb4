// Package capabilities retains the minimal Linux capability set precached
// needs after dropping root privileges. Declared without a build tag so
// callers (notably the composition root) can reference the capability
// numbers on any platform even though Get/RetainOnly/DropPrivileges are
// only functional on Linux.
package capabilities

// Capability numbers precached cares about (see linux/capability.h):
// CAP_DAC_READ_SEARCH (read any file for tracing purposes) and
// CAP_SYS_PTRACE. No ptrace-based tracer is built; fstracer uses fanotify.
const (
	CAP_DAC_READ_SEARCH = 2
	CAP_SYS_PTRACE      = 19
)
