package eventbus

import (
	"sync"

	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/procmon"
)

// Bus is an ordered, insertion-order dispatch hub. The zero value is not
// usable; construct with New.
type Bus struct {
	mu        sync.Mutex
	listeners []Listener
	byName    map[string]Listener

	// pending is swapped in from next at the top of each Dispatch call, so
	// that QueueInternalEvent calls made during this tick's dispatch are
	// delivered on the NEXT tick rather than re-entrantly.
	pending []InternalEvent
	next    []InternalEvent
}

// Handle is the narrow, non-retainable capability passed to listeners
// during dispatch. Holding a Handle past the call that provided it is a
// programming error; it exists only to let QueueInternalEvent be callable
// without listeners holding a *Bus across ticks.
type Handle struct {
	bus *Bus
}

// QueueInternalEvent enqueues ev for delivery on a subsequent tick.
func (h Handle) QueueInternalEvent(ev InternalEvent) {
	h.bus.mu.Lock()
	h.bus.next = append(h.bus.next, ev)
	h.bus.mu.Unlock()
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{byName: make(map[string]Listener)}
}

// Register adds a listener at the end of the dispatch order. Registering a
// name that is already present replaces the prior listener in place,
// keeping its original position (spec: unregister_all + re-register would
// otherwise perturb ordering on a simple reload).
func (b *Bus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byName[l.Name()]; exists {
		for i, existing := range b.listeners {
			if existing.Name() == l.Name() {
				b.listeners[i] = l
				break
			}
		}
		b.byName[l.Name()] = l
		return
	}
	b.listeners = append(b.listeners, l)
	b.byName[l.Name()] = l
}

// UnregisterAll removes every listener.
func (b *Bus) UnregisterAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = nil
	b.byName = make(map[string]Listener)
}

// GetByName returns the listener registered under name, if any.
func (b *Bus) GetByName(name string) (Listener, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.byName[name]
	return l, ok
}

// snapshot returns a stable, insertion-ordered copy of the listener list
// for iteration outside the lock (a listener's own handler may call back
// into Register/GetByName).
func (b *Bus) snapshot() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener, len(b.listeners))
	copy(out, b.listeners)
	return out
}

func (b *Bus) handle() Handle { return Handle{bus: b} }

// DispatchProcessEvent calls HandleProcessEvent on every listener in
// insertion order, recovering from (and logging) any listener panic so one
// broken listener cannot take down MainLoop.
func (b *Bus) DispatchProcessEvent(ev procmon.Event) {
	log := logging.For("eventbus")
	for _, l := range b.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("listener panicked handling process event", "listener", l.Name(), "panic", r)
				}
			}()
			if err := l.HandleProcessEvent(b.handle(), ev); err != nil {
				log.Warn("listener returned error handling process event", "listener", l.Name(), "error", err)
			}
		}()
	}
}

// Dispatch delivers this tick's queued InternalEvents to every listener, in
// insertion order. Events queued via Handle.QueueInternalEvent during this
// call land in next and are delivered on the following Dispatch call.
func (b *Bus) Dispatch(events []InternalEvent) {
	log := logging.For("eventbus")

	b.mu.Lock()
	b.pending = append(b.next, events...)
	b.next = nil
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	listeners := b.snapshot()
	for _, ev := range pending {
		for _, l := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error("listener panicked handling internal event", "listener", l.Name(), "event", ev.Kind, "panic", r)
					}
				}()
				if err := l.HandleInternalEvent(b.handle(), ev); err != nil {
					log.Warn("listener returned error handling internal event", "listener", l.Name(), "event", ev.Kind, "error", err)
				}
			}()
		}
	}
}

// CallMainLoopHooks invokes MainLoopHook on every listener that implements
// it, in insertion order.
func (b *Bus) CallMainLoopHooks() {
	log := logging.For("eventbus")
	for _, l := range b.snapshot() {
		hook, ok := l.(MainLoopHook)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("listener panicked in main loop hook", "listener", l.Name(), "panic", r)
				}
			}()
			if err := hook.MainLoopHook(b.handle()); err != nil {
				log.Warn("listener returned error from main loop hook", "listener", l.Name(), "error", err)
			}
		}()
	}
}
