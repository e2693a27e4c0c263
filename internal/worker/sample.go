package worker

import (
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
)

// TickSample flattens a snapshot into a recording row.
func TickSample(runID uuid.UUID, tick uint64, s sim.State, cfg sim.Config) core.TickSample {
	ferries := make([]core.FerrySample, len(s.Ferries))
	for i, f := range s.Ferries {
		fs := core.FerrySample{
			FerryID:  f.ID,
			State:    string(f.State()),
			Boarded:  f.Load(),
			Capacity: f.Capacity,
		}
		if loc, ok := f.Location(); ok {
			fs.Location = loc.String()
		}
		if dir, ok := f.Direction(); ok {
			fs.Direction = dir.String()
		}
		ferries[i] = fs
	}

	return core.TickSample{
		RunID:             runID,
		Tick:              tick,
		SimMinutes:        s.Time,
		Clock:             sim.FormatClock(s.Time, cfg),
		QueueSLZ:          s.Queue(sim.SLZ).Len(),
		QueueCUJ:          s.Queue(sim.CUJ).Len(),
		InTransit:         s.InTransit(),
		VehiclesProcessed: s.VehiclesProcessed,
		TotalWaitTime:     s.TotalWaitTime,
		AvgWait:           sim.AverageWaitTime(s),
		Utilization:       sim.AverageUtilization(s),
		Status:            string(s.Status()),
		Peak:              cfg.IsPeak(s.Time),
		Ferries:           ferries,
	}
}

// DiffEvents lists what happened between two consecutive snapshots: one
// transition per ferry whose phase changed, and one event per increment of
// the maintenance, failure and peak counters. A maintenance or failure event
// names the ferry only when a single ferry entered maintenance in the step.
func DiffEvents(runID uuid.UUID, prev, next sim.State, cfg sim.Config) []core.RunEvent {
	clock := sim.FormatClock(next.Time, cfg)
	base := core.RunEvent{RunID: runID, SimMinutes: next.Time, Clock: clock}

	before := make(map[int]sim.Ferry, len(prev.Ferries))
	for _, f := range prev.Ferries {
		before[f.ID] = f
	}

	var events []core.RunEvent
	var entered []int
	for _, f := range next.Ferries {
		old, ok := before[f.ID]
		if !ok || !phaseChanged(old, f) {
			continue
		}
		if f.State() == sim.StateMaintenance {
			entered = append(entered, f.ID)
		}
		e := base
		e.Kind = core.EventTransition
		e.FerryID = ferryID(f.ID)
		e.From = string(old.State())
		e.To = string(f.State())
		events = append(events, e)
	}

	var attributed *int
	if len(entered) == 1 {
		attributed = ferryID(entered[0])
	}
	counters := []struct {
		kind   string
		delta  int
		detail string
		ferry  *int
	}{
		{core.EventMaintenance, next.MaintenanceEvents - prev.MaintenanceEvents, "scheduled maintenance", attributed},
		{core.EventFailure, next.FailureEvents - prev.FailureEvents, "unplanned breakdown", attributed},
		{core.EventPeak, next.PeakEvents - prev.PeakEvents, "peak period started", nil},
	}
	for _, c := range counters {
		for range max(c.delta, 0) {
			e := base
			e.Kind = c.kind
			e.Detail = c.detail
			e.FerryID = c.ferry
			events = append(events, e)
		}
	}
	return events
}

// phaseChanged also catches a ferry re-entering maintenance, which keeps the
// phase name but moves the window.
func phaseChanged(a, b sim.Ferry) bool {
	if a.State() != b.State() {
		return true
	}
	ua, _ := a.MaintenanceUntil()
	ub, _ := b.MaintenanceUntil()
	return ua != ub
}

func ferryID(id int) *int {
	return &id
}

// Summary builds the end-of-run record for s.
func Summary(runID uuid.UUID, s sim.State) core.RunSummary {
	sum := sim.Summarize(s)
	ev := sim.Evaluate(sum)
	return core.RunSummary{
		RunID:             runID,
		TotalTime:         sum.TotalTime,
		AvgQueueLength:    sum.AvgQueueLength,
		MaxQueueLength:    sum.MaxQueueLength,
		AvgWaitTime:       sum.AvgWaitTime,
		VehiclesProcessed: sum.VehiclesProcessed,
		VehiclesRejected:  sum.VehiclesRejected,
		AvgUtilization:    sum.AvgUtilization,
		MaintenanceEvents: sum.MaintenanceEvents,
		FailureEvents:     sum.FailureEvents,
		PeakEvents:        sum.PeakEvents,
		Grade:             string(ev.Grade),
		Message:           ev.Message,
		Warnings:          ev.Warnings,
	}
}
