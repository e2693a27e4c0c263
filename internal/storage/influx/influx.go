// Package influx implements the storage.Backend interface on InfluxDB.
// Every tick becomes a ferry_tick point plus one ferry_state point per ferry,
// timestamped at the run start plus the simulated minutes.
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

// Measurement names
const (
	MeasurementTick    = "ferry_tick"
	MeasurementState   = "ferry_state"
	MeasurementEvent   = "ferry_event"
	MeasurementSummary = "ferry_summary"
)

// Backend records tick metrics in InfluxDB.
type Backend struct {
	manager *Manager

	mu  sync.RWMutex
	run *core.Run
}

// New creates a new InfluxDB storage backend. backupPath receives gzip line
// protocol when the server cannot be reached.
func New(cfg config.InfluxConfig, backupPath string, log zerolog.Logger) *Backend {
	return &Backend{
		manager: NewManager(log, cfg, backupPath),
	}
}

// Init connects to the server or opens the backup file.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.manager.Connect(ctx)
}

// Close flushes and disconnects.
func (b *Backend) Close() error {
	return b.manager.Close()
}

// StartRun remembers the run for tagging and timestamps.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run = run
	return nil
}

// EndRun writes a summary point and flushes.
func (b *Backend) EndRun(summary *core.RunSummary) error {
	run, err := b.current()
	if err != nil {
		return err
	}
	if err := b.manager.WritePoint(summaryPoint(run, summary)); err != nil {
		return err
	}
	return b.manager.Flush()
}

// RecordTick writes the fleet-wide point and one point per ferry.
func (b *Backend) RecordTick(t *core.TickSample) error {
	run, err := b.current()
	if err != nil {
		return err
	}
	for _, p := range tickPoints(run, t) {
		if err := b.manager.WritePoint(p); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent writes an event point.
func (b *Backend) RecordEvent(e *core.RunEvent) error {
	run, err := b.current()
	if err != nil {
		return err
	}
	return b.manager.WritePoint(eventPoint(run, e))
}

func (b *Backend) current() (*core.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.run == nil {
		return nil, fmt.Errorf("no run started")
	}
	return b.run, nil
}

// simTime maps simulated minutes onto the run's wall-clock start.
func simTime(run *core.Run, minutes float64) time.Time {
	return run.StartedAt.Add(time.Duration(minutes * float64(time.Minute)))
}

func tickPoints(run *core.Run, t *core.TickSample) []*influxdb2_write.Point {
	at := simTime(run, t.SimMinutes)
	runID := run.ID.String()

	points := make([]*influxdb2_write.Point, 0, len(t.Ferries)+1)
	points = append(points, influxdb2_write.NewPoint(MeasurementTick,
		map[string]string{
			"run":    runID,
			"status": t.Status,
		},
		map[string]interface{}{
			"tick":               int64(t.Tick),
			"queue_slz":          t.QueueSLZ,
			"queue_cuj":          t.QueueCUJ,
			"queue_total":        t.QueueLength(),
			"in_transit":         t.InTransit,
			"vehicles_processed": t.VehiclesProcessed,
			"avg_wait":           t.AvgWait,
			"utilization":        t.Utilization,
			"peak":               t.Peak,
		},
		at,
	))

	for _, f := range t.Ferries {
		tags := map[string]string{
			"run":   runID,
			"ferry": fmt.Sprintf("%d", f.FerryID),
			"state": f.State,
		}
		if f.Location != "" {
			tags["location"] = f.Location
		}
		if f.Direction != "" {
			tags["direction"] = f.Direction
		}
		points = append(points, influxdb2_write.NewPoint(MeasurementState,
			tags,
			map[string]interface{}{
				"boarded":  f.Boarded,
				"capacity": f.Capacity,
			},
			at,
		))
	}
	return points
}

func eventPoint(run *core.Run, e *core.RunEvent) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementEvent).
		AddTag("run", run.ID.String()).
		AddTag("kind", e.Kind).
		AddField("clock", e.Clock).
		SetTime(simTime(run, e.SimMinutes))
	if e.FerryID != nil {
		p.AddTag("ferry", fmt.Sprintf("%d", *e.FerryID))
	}
	if e.From != "" {
		p.AddField("from", e.From)
	}
	if e.To != "" {
		p.AddField("to", e.To)
	}
	if e.Detail != "" {
		p.AddField("detail", e.Detail)
	}
	return p
}

func summaryPoint(run *core.Run, s *core.RunSummary) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementSummary,
		map[string]string{
			"run":   run.ID.String(),
			"grade": s.Grade,
		},
		map[string]interface{}{
			"total_time":         s.TotalTime,
			"avg_queue_length":   s.AvgQueueLength,
			"max_queue_length":   s.MaxQueueLength,
			"avg_wait_time":      s.AvgWaitTime,
			"vehicles_processed": s.VehiclesProcessed,
			"avg_utilization":    s.AvgUtilization,
			"maintenance_events": s.MaintenanceEvents,
			"failure_events":     s.FailureEvents,
			"peak_events":        s.PeakEvents,
		},
		simTime(run, s.TotalTime),
	)
}
