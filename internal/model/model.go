package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&TickSample{},
	&RunEvent{},
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Run is one simulated operating day
type Run struct {
	ID        string          `json:"id" gorm:"primaryKey;size:36"`
	Name      string          `json:"name" gorm:"size:127"`
	Seed      int64           `json:"seed"`
	StartedAt time.Time       `json:"startedAt" gorm:"index:idx_run_started_at"`
	EndedAt   sql.NullTime    `json:"endedAt"`
	Config    datatypes.JSON  `json:"config"`
	RouteKm   float64         `json:"routeKm"`
	Route     geom.LineString `json:"route"` // SLZ to CUJ in EPSG:3857
	Terminals datatypes.JSON  `json:"terminals"`
	Grade     string          `json:"grade" gorm:"size:16"`
	Summary   datatypes.JSON  `json:"summary"`
}

func (*Run) TableName() string {
	return "runs"
}

// TickSample is the fleet and queue state after one tick
type TickSample struct {
	ID                uint           `json:"-" gorm:"primarykey;autoIncrement"`
	RunID             string         `json:"runId" gorm:"size:36;index:idx_ticksample_run_tick,priority:1"`
	Tick              uint64         `json:"tick" gorm:"index:idx_ticksample_run_tick,priority:2"`
	SimMinutes        float64        `json:"simMinutes"`
	Clock             string         `json:"clock" gorm:"size:5"`
	QueueSLZ          int            `json:"queueSLZ"`
	QueueCUJ          int            `json:"queueCUJ"`
	InTransit         int            `json:"inTransit"`
	VehiclesProcessed int            `json:"vehiclesProcessed"`
	TotalWaitTime     float64        `json:"totalWaitTime"`
	AvgWait           float64        `json:"avgWait"`
	Utilization       float64        `json:"utilization"`
	Status            string         `json:"status" gorm:"size:16"`
	Peak              bool           `json:"peak"`
	Ferries           datatypes.JSON `json:"ferries"`
}

func (*TickSample) TableName() string {
	return "tick_samples"
}

// RunEvent is a ferry transition or a fleet-wide occurrence
type RunEvent struct {
	ID         uint          `json:"-" gorm:"primarykey;autoIncrement"`
	RunID      string        `json:"runId" gorm:"size:36;index:idx_runevent_run_id"`
	SimMinutes float64       `json:"simMinutes"`
	Clock      string        `json:"clock" gorm:"size:5"`
	Kind       string        `json:"kind" gorm:"size:16;index:idx_runevent_kind"`
	FerryID    sql.NullInt32 `json:"ferryId" gorm:"default:NULL"`
	FromState  string        `json:"from" gorm:"size:16"`
	ToState    string        `json:"to" gorm:"size:16"`
	Detail     string        `json:"detail" gorm:"size:255"`
}

func (*RunEvent) TableName() string {
	return "run_events"
}
