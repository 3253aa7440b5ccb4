package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/procmon"
)

type recordingListener struct {
	name        string
	internal    []InternalEvent
	process     []procmon.Event
	queueOnSeen InternalEventKind
	queueEvent  InternalEvent
	panicOn     InternalEventKind
	errOn       InternalEventKind
}

func (r *recordingListener) Name() string { return r.name }

func (r *recordingListener) HandleInternalEvent(h Handle, ev InternalEvent) error {
	if ev.Kind == r.panicOn {
		panic("boom")
	}
	r.internal = append(r.internal, ev)
	if ev.Kind == r.queueOnSeen {
		h.QueueInternalEvent(r.queueEvent)
	}
	if ev.Kind == r.errOn {
		return errors.New("handler failed")
	}
	return nil
}

func (r *recordingListener) HandleProcessEvent(h Handle, ev procmon.Event) error {
	r.process = append(r.process, ev)
	return nil
}

func TestDispatchIsInsertionOrder(t *testing.T) {
	b := New()
	var order []string
	a := &orderListener{name: "a", order: &order}
	c := &orderListener{name: "c", order: &order}
	bb := &orderListener{name: "b", order: &order}
	b.Register(a)
	b.Register(bb)
	b.Register(c)

	b.Dispatch([]InternalEvent{{Kind: EventPing}})

	require.Equal(t, []string{"a", "b", "c"}, order)
}

type orderListener struct {
	name  string
	order *[]string
}

func (o *orderListener) Name() string { return o.name }
func (o *orderListener) HandleInternalEvent(h Handle, ev InternalEvent) error {
	*o.order = append(*o.order, o.name)
	return nil
}
func (o *orderListener) HandleProcessEvent(h Handle, ev procmon.Event) error { return nil }

func TestQueuedEventIsDeliveredNextTickNotReentrantly(t *testing.T) {
	b := New()
	l := &recordingListener{
		name:        "self-requeue",
		queueOnSeen: EventPing,
		queueEvent:  InternalEvent{Kind: EventShutdown},
	}
	b.Register(l)

	b.Dispatch([]InternalEvent{{Kind: EventPing}})
	require.Len(t, l.internal, 1)
	require.Equal(t, EventPing, l.internal[0].Kind)

	b.Dispatch(nil)
	require.Len(t, l.internal, 2)
	require.Equal(t, EventShutdown, l.internal[1].Kind)
}

func TestListenerPanicDoesNotStopOtherListeners(t *testing.T) {
	b := New()
	panicky := &recordingListener{name: "panicky", panicOn: EventPing}
	calm := &recordingListener{name: "calm"}
	b.Register(panicky)
	b.Register(calm)

	require.NotPanics(t, func() {
		b.Dispatch([]InternalEvent{{Kind: EventPing}})
	})
	require.Len(t, calm.internal, 1)
}

func TestListenerErrorDoesNotStopOtherListeners(t *testing.T) {
	b := New()
	failing := &recordingListener{name: "failing", errOn: EventPing}
	calm := &recordingListener{name: "calm"}
	b.Register(failing)
	b.Register(calm)

	b.Dispatch([]InternalEvent{{Kind: EventPing}})
	require.Len(t, failing.internal, 1)
	require.Len(t, calm.internal, 1)
}

func TestRegisterSameNameReplacesInPlace(t *testing.T) {
	b := New()
	var order []string
	first := &orderListener{name: "x", order: &order}
	second := &orderListener{name: "y", order: &order}
	third := &orderListener{name: "x", order: &order} // replaces first, keeps position

	b.Register(first)
	b.Register(second)
	b.Register(third)

	got, ok := b.GetByName("x")
	require.True(t, ok)
	require.Same(t, third, got)

	b.Dispatch([]InternalEvent{{Kind: EventPing}})
	require.Equal(t, []string{"x", "y"}, order)
}

func TestDispatchProcessEvent(t *testing.T) {
	b := New()
	l := &recordingListener{name: "proc"}
	b.Register(l)

	b.DispatchProcessEvent(procmon.Event{Kind: procmon.KindExec, PID: 42})
	require.Len(t, l.process, 1)
	require.Equal(t, 42, l.process[0].PID)
}

type hookListener struct {
	recordingListener
	called int
}

func (h *hookListener) MainLoopHook(handle Handle) error {
	h.called++
	return nil
}

func TestMainLoopHooksOnlyCalledOnListenersImplementingIt(t *testing.T) {
	b := New()
	plain := &recordingListener{name: "plain"}
	hooked := &hookListener{recordingListener: recordingListener{name: "hooked"}}
	b.Register(plain)
	b.Register(hooked)

	b.CallMainLoopHooks()
	require.Equal(t, 1, hooked.called)
}

func TestUnregisterAllClearsListeners(t *testing.T) {
	b := New()
	b.Register(&recordingListener{name: "a"})
	b.UnregisterAll()

	_, ok := b.GetByName("a")
	require.False(t, ok)
}
