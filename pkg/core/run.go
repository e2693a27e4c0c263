// pkg/core/run.go
package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TerminalInfo describes one end of the route.
type TerminalInfo struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	// Projected position in EPSG:3857 metres
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Run identifies one simulated operating day.
type Run struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Seed      int64           `json:"seed"`
	StartedAt time.Time       `json:"startedAt"`
	Config    json.RawMessage `json:"config"`
	RouteKm   float64         `json:"routeKm"`
	Terminals []TerminalInfo  `json:"terminals"`
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	RunID             uuid.UUID `json:"runId"`
	EndedAt           time.Time `json:"endedAt"`
	TotalTime         float64   `json:"totalTime"`
	AvgQueueLength    float64   `json:"avgQueueLength"`
	MaxQueueLength    int       `json:"maxQueueLength"`
	AvgWaitTime       float64   `json:"avgWaitTime"`
	VehiclesProcessed int       `json:"vehiclesProcessed"`
	VehiclesRejected  int       `json:"vehiclesRejected"`
	AvgUtilization    float64   `json:"avgUtilization"`
	MaintenanceEvents int       `json:"maintenanceEvents"`
	FailureEvents     int       `json:"failureEvents"`
	PeakEvents        int       `json:"peakEvents"`
	Grade             string    `json:"grade"`
	Message           string    `json:"message"`
	Warnings          []string  `json:"warnings,omitempty"`
}

// UploadMetadata accompanies an exported run sent to the upload server.
type UploadMetadata struct {
	RunName  string
	Duration float64 // simulated minutes
	Tag      string
}
