// pkg/core/events.go
package core

import "github.com/google/uuid"

// RunEvent kinds
const (
	EventTransition  = "transition"
	EventMaintenance = "maintenance"
	EventFailure     = "failure"
	EventPeak        = "peak"
	EventReconfigure = "reconfigure"
	EventReset       = "reset"
)

// RunEvent is a discrete occurrence during a run.
// FerryID is nil for events that do not concern a single ferry.
type RunEvent struct {
	RunID      uuid.UUID `json:"runId"`
	SimMinutes float64   `json:"simMinutes"`
	Clock      string    `json:"clock"`
	Kind       string    `json:"kind"`
	FerryID    *int      `json:"ferryId,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}
