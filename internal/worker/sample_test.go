package worker

import (
	"testing"

	"github.com/ferryqueue/ferrysim/internal/queue"
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSample_Ferries(t *testing.T) {
	cfg := sim.DefaultConfig()
	s := sim.NewState(cfg)
	s.Time = 200
	s.Ferries[0].Phase = sim.Crossing{Heading: sim.SLZToCUJ, ArrivesAt: 280}
	s.Ferries[0].Boarded = queue.Queue[sim.Vehicle]{}.Push(sim.Vehicle{ID: 1}, sim.Vehicle{ID: 2})
	s.Ferries[1].Phase = sim.Maintenance{At: sim.CUJ, Until: 440}

	sample := TickSample(uuid.Nil, 200, s, cfg)

	assert.Equal(t, "09:20", sample.Clock)
	assert.False(t, sample.Peak)
	assert.Equal(t, 1, sample.InTransit)
	require.Len(t, sample.Ferries, 4)

	crossing := sample.Ferries[0]
	assert.Equal(t, "crossing", crossing.State)
	assert.Equal(t, "SLZ_TO_CUJ", crossing.Direction)
	assert.Empty(t, crossing.Location)
	assert.Equal(t, 2, crossing.Boarded)

	assert.Equal(t, "CUJ", sample.Ferries[1].Location)
	assert.Equal(t, "maintenance", sample.Ferries[1].State)
	// 2/50 boarded on one of four ferries
	assert.InDelta(t, 1.0, sample.Utilization, 1e-9)
}

func TestDiffEvents_AttributesSingleMaintenance(t *testing.T) {
	cfg := sim.DefaultConfig()
	prev := sim.NewState(cfg)
	next := prev
	next.Ferries = append([]sim.Ferry(nil), prev.Ferries...)
	next.Ferries[2].Phase = sim.Maintenance{At: sim.SLZ, Until: 240}
	next.FailureEvents = 1

	events := DiffEvents(uuid.Nil, prev, next, cfg)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventTransition, events[0].Kind)
	assert.Equal(t, core.EventFailure, events[1].Kind)
	require.NotNil(t, events[1].FerryID)
	assert.Equal(t, 2, *events[1].FerryID)
}

func TestDiffEvents_AmbiguousMaintenance(t *testing.T) {
	cfg := sim.DefaultConfig()
	prev := sim.NewState(cfg)
	next := prev
	next.Ferries = append([]sim.Ferry(nil), prev.Ferries...)
	next.Ferries[0].Phase = sim.Maintenance{At: sim.SLZ, Until: 240}
	next.Ferries[1].Phase = sim.Maintenance{At: sim.CUJ, Until: 240}
	next.MaintenanceEvents = 1
	next.FailureEvents = 1

	events := DiffEvents(uuid.Nil, prev, next, cfg)
	require.Len(t, events, 4)
	assert.Nil(t, events[2].FerryID)
	assert.Nil(t, events[3].FerryID)
}

func TestDiffEvents_ReenteredMaintenance(t *testing.T) {
	cfg := sim.DefaultConfig()
	prev := sim.NewState(cfg)
	prev.Ferries[0].Phase = sim.Maintenance{At: sim.SLZ, Until: 100}
	next := prev
	next.Ferries = append([]sim.Ferry(nil), prev.Ferries...)
	next.Ferries[0].Phase = sim.Maintenance{At: sim.SLZ, Until: 400}
	next.MaintenanceEvents = 1

	events := DiffEvents(uuid.Nil, prev, next, cfg)
	require.Len(t, events, 2)
	assert.Equal(t, "maintenance", events[0].From)
	assert.Equal(t, "maintenance", events[0].To)
	assert.Equal(t, 0, *events[1].FerryID)
}

func TestDiffEvents_NewFerriesIgnored(t *testing.T) {
	cfg := sim.DefaultConfig()
	prev := sim.NewState(cfg)
	bigger := cfg
	bigger.FerryCount = 6
	next, err := sim.Reconfigure(prev, bigger)
	require.NoError(t, err)

	assert.Empty(t, DiffEvents(uuid.Nil, prev, next, cfg))
}

func TestSummary_Evaluates(t *testing.T) {
	s := sim.NewState(sim.DefaultConfig())
	s.MaxQueueLength = 200

	sum := Summary(uuid.Nil, s)
	assert.Equal(t, "CRITICAL", sum.Grade)
	assert.Equal(t, 200, sum.MaxQueueLength)
	assert.NotEmpty(t, sum.Message)
}
