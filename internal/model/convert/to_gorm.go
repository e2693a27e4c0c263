// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ferryqueue/ferrysim/internal/model"
	"github.com/ferryqueue/ferrysim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// terminalsToLineString joins the projected terminal positions into a route line.
// Fewer than two terminals give the empty line.
func terminalsToLineString(ts []core.TerminalInfo) (geom.LineString, error) {
	if len(ts) < 2 {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(ts)*2)
	for _, t := range ts {
		coords = append(coords, t.X, t.Y)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
}

// toJSON marshals v for a JSON column, falling back to empty when v is empty.
func toJSON(v any, empty string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON(empty)
	}
	return datatypes.JSON(data)
}

// CoreToRun converts a core.Run to a GORM model.Run. It fails when the
// terminal positions do not form a valid route line.
func CoreToRun(r core.Run) (model.Run, error) {
	cfg := datatypes.JSON("{}")
	if len(r.Config) > 0 {
		cfg = datatypes.JSON(r.Config)
	}
	route, err := terminalsToLineString(r.Terminals)
	if err != nil {
		return model.Run{}, fmt.Errorf("run %s route: %w", r.ID, err)
	}

	return model.Run{
		ID:        r.ID.String(),
		Name:      r.Name,
		Seed:      r.Seed,
		StartedAt: r.StartedAt,
		Config:    cfg,
		RouteKm:   r.RouteKm,
		Route:     route,
		Terminals: toJSON(r.Terminals, "[]"),
		Summary:   datatypes.JSON("{}"),
	}, nil
}

// ApplySummary records the end-of-run report on a run row.
func ApplySummary(r *model.Run, s core.RunSummary) {
	r.EndedAt = sql.NullTime{Time: s.EndedAt, Valid: !s.EndedAt.IsZero()}
	r.Grade = s.Grade
	r.Summary = toJSON(s, "{}")
}

// CoreToTickSample converts a core.TickSample to a GORM model.TickSample.
func CoreToTickSample(t core.TickSample) model.TickSample {
	return model.TickSample{
		RunID:             t.RunID.String(),
		Tick:              t.Tick,
		SimMinutes:        t.SimMinutes,
		Clock:             t.Clock,
		QueueSLZ:          t.QueueSLZ,
		QueueCUJ:          t.QueueCUJ,
		InTransit:         t.InTransit,
		VehiclesProcessed: t.VehiclesProcessed,
		TotalWaitTime:     t.TotalWaitTime,
		AvgWait:           t.AvgWait,
		Utilization:       t.Utilization,
		Status:            t.Status,
		Peak:              t.Peak,
		Ferries:           toJSON(t.Ferries, "[]"),
	}
}

// CoreToRunEvent converts a core.RunEvent to a GORM model.RunEvent.
func CoreToRunEvent(e core.RunEvent) model.RunEvent {
	var ferryID sql.NullInt32
	if e.FerryID != nil {
		ferryID = sql.NullInt32{Int32: int32(*e.FerryID), Valid: true}
	}

	return model.RunEvent{
		RunID:      e.RunID.String(),
		SimMinutes: e.SimMinutes,
		Clock:      e.Clock,
		Kind:       e.Kind,
		FerryID:    ferryID,
		FromState:  e.From,
		ToState:    e.To,
		Detail:     e.Detail,
	}
}
