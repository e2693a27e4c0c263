package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferryqueue/ferrysim/internal/dispatcher"
	"github.com/ferryqueue/ferrysim/internal/runner"
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	run      *core.Run
	ticks    []*core.TickSample
	events   []*core.RunEvent
	summary  *core.RunSummary
	startErr error
	endErr   error
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.run = run
	return nil
}

func (b *mockBackend) EndRun(summary *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = summary
	return b.endErr
}

func (b *mockBackend) RecordTick(t *core.TickSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticks = append(b.ticks, t)
	return nil
}

func (b *mockBackend) RecordEvent(e *core.RunEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *mockBackend) eventKinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]string, len(b.events))
	for i, e := range b.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func setup(t *testing.T) (*dispatcher.Dispatcher, *Manager, *mockBackend) {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	backend := &mockBackend{}
	m := NewManager(Dependencies{}, backend)
	m.RegisterHandlers(d)
	return d, m, backend
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, command string, payload any) any {
	t.Helper()
	result, err := d.Dispatch(dispatcher.Event{Command: command, Payload: payload, Timestamp: time.Now()})
	require.NoError(t, err)
	return result
}

func flush(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))
}

func testRun() *core.Run {
	return &core.Run{ID: uuid.New(), Name: "test", Seed: 1, StartedAt: time.Now()}
}

func TestRegisterHandlers(t *testing.T) {
	d, _, _ := setup(t)
	for _, cmd := range []string{runner.CmdRunStart, runner.CmdTick, runner.CmdSimEvent, runner.CmdRunEnd} {
		_, err := d.Dispatch(dispatcher.Event{Command: cmd, Timestamp: time.Now()})
		assert.NotErrorIs(t, err, dispatcher.ErrUnknownCommand, cmd)
	}
	flush(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: "ferry:sink"})
	assert.ErrorIs(t, err, dispatcher.ErrUnknownCommand)
}

func TestNewManager_TickBuffer(t *testing.T) {
	assert.Equal(t, DefaultTickBuffer, NewManager(Dependencies{}, &mockBackend{}).deps.TickBuffer)
	assert.Equal(t, 64, NewManager(Dependencies{TickBuffer: 64}, &mockBackend{}).deps.TickBuffer)
}

func TestHandleRunStart(t *testing.T) {
	d, m, backend := setup(t)
	run := testRun()

	dispatch(t, d, runner.CmdRunStart, run)

	assert.Same(t, run, backend.run)
	assert.Same(t, run, m.Run())
}

func TestHandleRunStart_Errors(t *testing.T) {
	d, m, backend := setup(t)

	_, err := d.Dispatch(dispatcher.Event{Command: runner.CmdRunStart, Payload: "nope"})
	assert.Error(t, err)

	backend.startErr = errors.New("disk full")
	_, err = d.Dispatch(dispatcher.Event{Command: runner.CmdRunStart, Payload: testRun()})
	assert.ErrorContains(t, err, "disk full")
	assert.Nil(t, m.Run())
}

func TestHandleTick_RecordsSampleAndTransitions(t *testing.T) {
	d, _, backend := setup(t)
	run := testRun()
	dispatch(t, d, runner.CmdRunStart, run)

	cfg := sim.DefaultConfig()
	prev := sim.NewState(cfg)
	next := prev
	next.Time = 60
	next.Ferries = append([]sim.Ferry(nil), prev.Ferries...)
	next.Ferries[0].Phase = sim.Loading{At: sim.SLZ}
	next.PeakEvents = 1
	next = next.Enqueue(sim.SLZ, sim.Vehicle{ID: 1, Class: sim.Car, Origin: sim.SLZ})

	dispatch(t, d, runner.CmdTick, runner.TickPayload{Tick: 60, Prev: prev, Next: next, Config: cfg})
	flush(t, d)

	require.Len(t, backend.ticks, 1)
	sample := backend.ticks[0]
	assert.Equal(t, run.ID, sample.RunID)
	assert.Equal(t, uint64(60), sample.Tick)
	assert.Equal(t, "07:00", sample.Clock)
	assert.Equal(t, 1, sample.QueueSLZ)
	assert.True(t, sample.Peak)
	assert.Equal(t, "loading", sample.Ferries[0].State)

	assert.Equal(t, []string{core.EventTransition, core.EventPeak}, backend.eventKinds())
	tr := backend.events[0]
	require.NotNil(t, tr.FerryID)
	assert.Equal(t, 0, *tr.FerryID)
	assert.Equal(t, "idle", tr.From)
	assert.Equal(t, "loading", tr.To)
	assert.Nil(t, backend.events[1].FerryID)
}

func TestHandleTick_BeforeRunStart(t *testing.T) {
	d, _, backend := setup(t)
	cfg := sim.DefaultConfig()
	s := sim.NewState(cfg)

	dispatch(t, d, runner.CmdTick, runner.TickPayload{Tick: 1, Prev: s, Next: s, Config: cfg})
	flush(t, d)

	assert.Empty(t, backend.ticks)
}

func TestHandleSimEvent(t *testing.T) {
	d, _, backend := setup(t)
	dispatch(t, d, runner.CmdRunStart, testRun())

	cfg := sim.DefaultConfig()
	s := sim.NewState(cfg)
	s.Time = 90
	dispatch(t, d, runner.CmdSimEvent, runner.SimEventPayload{
		Kind: core.EventReconfigure, State: s, Config: cfg, Detail: "ferries=6 capacity=60",
	})
	flush(t, d)

	require.Len(t, backend.events, 1)
	e := backend.events[0]
	assert.Equal(t, core.EventReconfigure, e.Kind)
	assert.Equal(t, "07:30", e.Clock)
	assert.Equal(t, "ferries=6 capacity=60", e.Detail)
}

func TestHandleRunEnd(t *testing.T) {
	d, _, backend := setup(t)
	run := testRun()
	dispatch(t, d, runner.CmdRunStart, run)

	s := sim.NewState(sim.DefaultConfig())
	s.Time = 120
	s.VehiclesProcessed = 10
	s.TotalWaitTime = 50
	ended := time.Now()

	result := dispatch(t, d, runner.CmdRunEnd, runner.RunEndPayload{State: s, Config: sim.DefaultConfig(), EndedAt: ended})

	summary, ok := result.(*core.RunSummary)
	require.True(t, ok)
	assert.Same(t, summary, backend.summary)
	assert.Equal(t, run.ID, summary.RunID)
	assert.Equal(t, ended, summary.EndedAt)
	assert.Equal(t, 120.0, summary.TotalTime)
	assert.Equal(t, 5.0, summary.AvgWaitTime)
	assert.Equal(t, "HEALTHY", summary.Grade)
}

func TestHandleRunEnd_BackendError(t *testing.T) {
	d, _, backend := setup(t)
	dispatch(t, d, runner.CmdRunStart, testRun())
	backend.endErr = errors.New("upload failed")

	result, err := d.Dispatch(dispatcher.Event{
		Command: runner.CmdRunEnd,
		Payload: runner.RunEndPayload{State: sim.NewState(sim.DefaultConfig())},
	})
	assert.ErrorContains(t, err, "upload failed")
	assert.NotNil(t, result, "summary is still returned for the report")
}

func TestHandleRunEnd_WithoutRun(t *testing.T) {
	d, _, _ := setup(t)
	_, err := d.Dispatch(dispatcher.Event{Command: runner.CmdRunEnd, Payload: runner.RunEndPayload{}})
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestEndToEnd_WithRunner(t *testing.T) {
	d, _, backend := setup(t)
	run := testRun()
	dispatch(t, d, runner.CmdRunStart, run)

	r, err := runner.New(sim.DefaultConfig(), runner.Options{Seed: 5, TimeScale: 5, Publisher: d})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	flush(t, d)

	assert.Len(t, backend.ticks, int(r.Ticks()))
	assert.Contains(t, backend.eventKinds(), core.EventPeak)
	assert.Contains(t, backend.eventKinds(), core.EventTransition)

	dispatch(t, d, runner.CmdRunEnd, runner.RunEndPayload{State: r.Snapshot(), Config: r.Config(), EndedAt: time.Now()})
	require.NotNil(t, backend.summary)
	assert.Equal(t, r.Snapshot().VehiclesProcessed, backend.summary.VehiclesProcessed)
}
