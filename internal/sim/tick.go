package sim

import (
	"math"
	"slices"
)

// Advance moves the simulation forward by baseDelta × timeScale simulated
// minutes and returns the resulting state. A paused state is returned as is.
// Once the clock reaches OperationEnd the run stops and nothing else changes.
//
// rng must not be nil; draws happen in a fixed order (arrivals, then each
// ferry by index) so a seeded source replays exactly.
func Advance(s State, cfg Config, rng Source, baseDelta, timeScale float64) State {
	if !s.Running {
		return s
	}
	delta := baseDelta * timeScale
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 {
		return s
	}

	now := s.Time + delta
	if cfg.HourAt(now) >= cfg.OperationEnd {
		s.Running = false
		return s
	}

	next := s
	next.Time = now

	waiting := s.QueueLength()
	next.QueueHistory = s.QueueHistory.Push(waiting)
	next.MaxQueueLength = max(s.MaxQueueLength, waiting)
	if cfg.IsPeak(now) && !cfg.IsPeak(s.Time) {
		next.PeakEvents++
	}

	t := &tick{cfg: cfg, rng: rng, now: now, delta: delta, next: &next}
	t.arrivals()

	next.Ferries = slices.Clone(s.Ferries)
	for i, f := range s.Ferries {
		next.Ferries[i] = t.stepFerry(f)
	}
	return next
}

// arrivals draws this tick's vehicles and appends them to their queues.
// The count is floor(expected + U): stochastic rounding with the same mean
// as the rate.
func (t *tick) arrivals() {
	expected := t.cfg.ArrivalRate(t.now) * t.delta
	n := math.Floor(expected + t.rng.Float64())
	if math.IsNaN(n) || n < 1 {
		return
	}

	var fresh [terminalCount][]Vehicle
	for range int(n) {
		origin := CUJ
		if t.rng.Float64() < 0.5 {
			origin = SLZ
		}
		class := Truck
		if t.rng.Float64() < t.cfg.CarShare {
			class = Car
		}
		fresh[origin] = append(fresh[origin], Vehicle{
			ID:        t.next.NextVehicleID,
			Class:     class,
			ArrivedAt: t.now,
			Origin:    origin,
		})
		t.next.NextVehicleID++
	}
	for _, term := range Terminals {
		t.next.Queues[term] = t.next.Queues[term].Push(fresh[term]...)
	}
}
