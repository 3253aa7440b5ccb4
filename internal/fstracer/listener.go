package fstracer

import (
	"path/filepath"
	"strings"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/procmon"
)

// Listener adapts a Manager to eventbus.Listener, so MainLoop's
// DispatchProcessEvent step drives tracing directly off ProcMon's exec/exit
// stream without either package depending on the other's concrete type.
type Listener struct {
	manager *Manager
}

// NewListener wraps manager for registration on an eventbus.Bus.
func NewListener(manager *Manager) *Listener {
	return &Listener{manager: manager}
}

func (l *Listener) Name() string { return "fstracer" }

func (l *Listener) HandleInternalEvent(_ eventbus.Handle, _ eventbus.InternalEvent) error {
	return nil
}

func (l *Listener) HandleProcessEvent(_ eventbus.Handle, ev procmon.Event) error {
	switch ev.Kind {
	case procmon.KindExec:
		if ev.Exe == "" {
			return nil
		}
		comm := filepath.Base(ev.Exe)
		l.manager.HandleExec(ev.PID, ev.Exe, comm, strings.Join(ev.Cmdline, " "))
	case procmon.KindExit:
		l.manager.HandleExit(ev.PID)
	}
	return nil
}
