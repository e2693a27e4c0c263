package convert

import (
	"encoding/json"

	"github.com/ferryqueue/ferrysim/internal/model"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
)

// TickSampleToCore converts a stored tick row back into a core.TickSample.
// An unparsable run id or ferry list leaves the corresponding field zero.
func TickSampleToCore(m model.TickSample) core.TickSample {
	runID, _ := uuid.Parse(m.RunID)

	var ferries []core.FerrySample
	if len(m.Ferries) > 0 {
		_ = json.Unmarshal(m.Ferries, &ferries)
	}

	return core.TickSample{
		RunID:             runID,
		Tick:              m.Tick,
		SimMinutes:        m.SimMinutes,
		Clock:             m.Clock,
		QueueSLZ:          m.QueueSLZ,
		QueueCUJ:          m.QueueCUJ,
		InTransit:         m.InTransit,
		VehiclesProcessed: m.VehiclesProcessed,
		TotalWaitTime:     m.TotalWaitTime,
		AvgWait:           m.AvgWait,
		Utilization:       m.Utilization,
		Status:            m.Status,
		Peak:              m.Peak,
		Ferries:           ferries,
	}
}

// RunEventToCore converts a stored event row back into a core.RunEvent.
func RunEventToCore(m model.RunEvent) core.RunEvent {
	runID, _ := uuid.Parse(m.RunID)

	e := core.RunEvent{
		RunID:      runID,
		SimMinutes: m.SimMinutes,
		Clock:      m.Clock,
		Kind:       m.Kind,
		From:       m.FromState,
		To:         m.ToState,
		Detail:     m.Detail,
	}
	if m.FerryID.Valid {
		id := int(m.FerryID.Int32)
		e.FerryID = &id
	}
	return e
}
