// pkg/core/tick.go
package core

import "github.com/google/uuid"

// FerrySample is one ferry's state at a tick.
// Location is empty while crossing, Direction is empty otherwise.
type FerrySample struct {
	FerryID   int    `json:"ferryId"`
	State     string `json:"state"`
	Boarded   int    `json:"boarded"`
	Capacity  int    `json:"capacity"`
	Location  string `json:"location,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// TickSample is the observable state after one tick.
type TickSample struct {
	RunID             uuid.UUID     `json:"runId"`
	Tick              uint64        `json:"tick"`
	SimMinutes        float64       `json:"simMinutes"`
	Clock             string        `json:"clock"`
	QueueSLZ          int           `json:"queueSLZ"`
	QueueCUJ          int           `json:"queueCUJ"`
	InTransit         int           `json:"inTransit"`
	VehiclesProcessed int           `json:"vehiclesProcessed"`
	TotalWaitTime     float64       `json:"totalWaitTime"`
	AvgWait           float64       `json:"avgWait"`
	Utilization       float64       `json:"utilization"`
	Status            string        `json:"status"`
	Peak              bool          `json:"peak"`
	Ferries           []FerrySample `json:"ferries"`
}

// QueueLength is the total of both terminal queues.
func (t TickSample) QueueLength() int {
	return t.QueueSLZ + t.QueueCUJ
}
