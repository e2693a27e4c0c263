package sim

import (
	"encoding/json"

	"github.com/ferryqueue/ferrysim/internal/queue"
)

// State is one immutable snapshot of the simulation. Advance never modifies
// its input; queues are persistent, so a new State shares structure with the
// one it was derived from.
type State struct {
	// Time is simulated minutes elapsed since OperationStart.
	Time    float64
	Queues  [terminalCount]queue.Queue[Vehicle]
	Ferries []Ferry
	Running bool

	VehiclesProcessed int
	TotalWaitTime     float64
	QueueHistory      queue.Queue[int]
	MaxQueueLength    int

	MaintenanceEvents int
	FailureEvents     int
	PeakEvents        int

	NextVehicleID uint64
}

// NewState builds a paused state with an idle fleet and empty queues.
// Ferries alternate between SLZ and CUJ by index.
func NewState(cfg Config) State {
	ferries := make([]Ferry, max(cfg.FerryCount, 0))
	for i := range ferries {
		ferries[i] = newFerry(i, i, cfg.FerryCapacity)
	}
	return State{Ferries: ferries, NextVehicleID: 1}
}

// Reset returns a fresh state for cfg.
func Reset(cfg Config) State {
	return NewState(cfg)
}

// Toggle flips the run/pause flag.
func Toggle(s State) State {
	s.Running = !s.Running
	return s
}

// Queue returns the waiting line at terminal t.
func (s State) Queue(t Terminal) queue.Queue[Vehicle] {
	return s.Queues[t]
}

// Enqueue returns a state with vehicles appended to the queue at t.
func (s State) Enqueue(t Terminal, vehicles ...Vehicle) State {
	s.Queues[t] = s.Queues[t].Push(vehicles...)
	return s
}

// LongestWait returns how long the vehicle at the head of the queue at t
// has been waiting, or zero when nobody waits.
func (s State) LongestWait(t Terminal) float64 {
	v, ok := s.Queues[t].Peek()
	if !ok {
		return 0
	}
	return max(s.Time-v.ArrivedAt, 0)
}

// QueueLength returns the total number of waiting vehicles.
func (s State) QueueLength() int {
	return s.Queues[SLZ].Len() + s.Queues[CUJ].Len()
}

// OnBoard returns the number of vehicles on all ferries.
func (s State) OnBoard() int {
	var n int
	for _, f := range s.Ferries {
		n += f.Load()
	}
	return n
}

// InTransit returns the number of ferries crossing.
func (s State) InTransit() int {
	var n int
	for _, f := range s.Ferries {
		if f.State() == StateCrossing {
			n++
		}
	}
	return n
}

// CountState returns the number of ferries in phase st.
func (s State) CountState(st FerryState) int {
	var n int
	for _, f := range s.Ferries {
		if f.State() == st {
			n++
		}
	}
	return n
}

type stateJSON struct {
	Time              float64   `json:"time"`
	QueueSLZ          []Vehicle `json:"queueSLZ"`
	QueueCUJ          []Vehicle `json:"queueCUJ"`
	Ferries           []Ferry   `json:"ferries"`
	Running           bool      `json:"isRunning"`
	VehiclesProcessed int       `json:"vehiclesProcessed"`
	TotalWaitTime     float64   `json:"totalWaitTime"`
	QueueHistory      []int     `json:"queueHistory"`
	MaxQueueLength    int       `json:"maxQueueLength"`
	MaintenanceEvents int       `json:"maintenanceEvents"`
	FailureEvents     int       `json:"failureEvents"`
	PeakEvents        int       `json:"peakEvents"`
}

// MarshalJSON renders the snapshot in the flat dashboard shape.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Time:              s.Time,
		QueueSLZ:          s.Queues[SLZ].Slice(),
		QueueCUJ:          s.Queues[CUJ].Slice(),
		Ferries:           s.Ferries,
		Running:           s.Running,
		VehiclesProcessed: s.VehiclesProcessed,
		TotalWaitTime:     s.TotalWaitTime,
		QueueHistory:      s.QueueHistory.Slice(),
		MaxQueueLength:    s.MaxQueueLength,
		MaintenanceEvents: s.MaintenanceEvents,
		FailureEvents:     s.FailureEvents,
		PeakEvents:        s.PeakEvents,
	})
}
