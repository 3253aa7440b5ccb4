package mainloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/procmon"
)

type fakeProcSource struct {
	ch chan procmon.Event
}

func (f *fakeProcSource) Events() <-chan procmon.Event { return f.ch }

type recordingListener struct {
	name     string
	internal []eventbus.InternalEvent
	process  []procmon.Event
}

func (r *recordingListener) Name() string { return r.name }
func (r *recordingListener) HandleInternalEvent(h eventbus.Handle, ev eventbus.InternalEvent) error {
	r.internal = append(r.internal, ev)
	return nil
}
func (r *recordingListener) HandleProcessEvent(h eventbus.Handle, ev procmon.Event) error {
	r.process = append(r.process, ev)
	return nil
}

func kinds(events []eventbus.InternalEvent) []eventbus.InternalEventKind {
	out := make([]eventbus.InternalEventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestTickDrainsProcMonAndDispatchesPing(t *testing.T) {
	bus := eventbus.New()
	l := &recordingListener{name: "l"}
	bus.Register(l)

	proc := &fakeProcSource{ch: make(chan procmon.Event, 2)}
	proc.ch <- procmon.Event{Kind: procmon.KindExec, PID: 1}
	proc.ch <- procmon.Event{Kind: procmon.KindExit, PID: 1}

	loop := New(Config{Bus: bus, ProcMon: proc})
	loop.Tick(time.Now())

	require.Len(t, l.process, 2)
	require.Contains(t, kinds(l.internal), eventbus.EventPing)
}

func TestRunDispatchesStartupAndShutdown(t *testing.T) {
	bus := eventbus.New()
	l := &recordingListener{name: "l"}
	bus.Register(l)

	loop := New(Config{Bus: bus, TickInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	got := kinds(l.internal)
	require.Contains(t, got, eventbus.EventStartup)
	require.Contains(t, got, eventbus.EventShutdown)
}

func TestMainLoopHooksCalledEachTick(t *testing.T) {
	bus := eventbus.New()
	h := &hookListener{recordingListener: recordingListener{name: "hook"}}
	bus.Register(h)

	loop := New(Config{Bus: bus})
	loop.Tick(time.Now())
	loop.Tick(time.Now())

	require.Equal(t, 2, h.called)
}

type hookListener struct {
	recordingListener
	called int
}

func (h *hookListener) MainLoopHook(handle eventbus.Handle) error {
	h.called++
	return nil
}
