package worker

import (
	"fmt"

	"github.com/ferryqueue/ferrysim/internal/dispatcher"
	"github.com/ferryqueue/ferrysim/internal/runner"
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/pkg/core"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Run lifecycle - sync (ticks need the run id, the CLI needs the summary)
	d.Register(runner.CmdRunStart, m.handleRunStart, dispatcher.Logged())
	d.Register(runner.CmdRunEnd, m.handleRunEnd, dispatcher.Logged())

	// High-volume snapshots - buffered, never dropped
	d.Register(runner.CmdTick, m.handleTick, dispatcher.Buffered(m.deps.TickBuffer), dispatcher.Blocking(), dispatcher.Logged())

	// Control-surface changes - buffered
	d.Register(runner.CmdSimEvent, m.handleSimEvent, dispatcher.Buffered(100), dispatcher.Logged())
}

func (m *Manager) handleRunStart(e dispatcher.Event) (any, error) {
	run, ok := e.Payload.(*core.Run)
	if !ok || run == nil {
		return nil, fmt.Errorf("run start: unexpected payload %T", e.Payload)
	}

	if err := m.backend.StartRun(run); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	m.mu.Lock()
	m.run = run
	m.mu.Unlock()

	m.deps.Logger.Info("Run recording started", "runId", run.ID, "seed", run.Seed)
	return nil, nil
}

func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(runner.TickPayload)
	if !ok {
		return nil, fmt.Errorf("tick: unexpected payload %T", e.Payload)
	}
	run := m.Run()
	if run == nil {
		return nil, ErrNoRun
	}

	sample := TickSample(run.ID, p.Tick, p.Next, p.Config)
	if err := m.backend.RecordTick(&sample); err != nil {
		m.deps.Logger.Error("Failed to record tick", "tick", p.Tick, "error", err)
	}

	for _, ev := range DiffEvents(run.ID, p.Prev, p.Next, p.Config) {
		if err := m.backend.RecordEvent(&ev); err != nil {
			m.deps.Logger.Error("Failed to record event", "kind", ev.Kind, "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleSimEvent(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(runner.SimEventPayload)
	if !ok {
		return nil, fmt.Errorf("sim event: unexpected payload %T", e.Payload)
	}
	run := m.Run()
	if run == nil {
		return nil, ErrNoRun
	}

	ev := core.RunEvent{
		RunID:      run.ID,
		SimMinutes: p.State.Time,
		Clock:      sim.FormatClock(p.State.Time, p.Config),
		Kind:       p.Kind,
		Detail:     p.Detail,
	}
	if err := m.backend.RecordEvent(&ev); err != nil {
		m.deps.Logger.Error("Failed to record event", "kind", ev.Kind, "error", err)
		return nil, err
	}
	return nil, nil
}

// handleRunEnd returns the *core.RunSummary it stored.
func (m *Manager) handleRunEnd(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(runner.RunEndPayload)
	if !ok {
		return nil, fmt.Errorf("run end: unexpected payload %T", e.Payload)
	}
	run := m.Run()
	if run == nil {
		return nil, ErrNoRun
	}

	summary := Summary(run.ID, p.State)
	summary.EndedAt = p.EndedAt

	if err := m.backend.EndRun(&summary); err != nil {
		return &summary, fmt.Errorf("failed to end run: %w", err)
	}

	m.deps.Logger.Info("Run recording finished",
		"runId", run.ID,
		"grade", summary.Grade,
		"vehiclesProcessed", summary.VehiclesProcessed)
	return &summary, nil
}
