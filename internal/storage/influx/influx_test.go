package influx

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/internal/storage"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func unreachable() config.InfluxConfig {
	return config.InfluxConfig{Protocol: "http", Host: "127.0.0.1", Port: "1", Org: "ferrysim", Bucket: "ticks"}
}

func testRun() *core.Run {
	return &core.Run{ID: uuid.New(), StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func lineProtocol(p *influxdb2_write.Point) string {
	return strings.TrimSpace(influxdb2_write.PointToLineProtocol(p, time.Nanosecond))
}

func TestTickPoints(t *testing.T) {
	run := testRun()
	points := tickPoints(run, &core.TickSample{
		RunID:      run.ID,
		Tick:       90,
		SimMinutes: 90,
		QueueSLZ:   10,
		QueueCUJ:   5,
		Status:     "NORMAL",
		Peak:       true,
		Ferries: []core.FerrySample{
			{FerryID: 1, State: "crossing", Boarded: 50, Capacity: 50, Direction: "SLZ_TO_CUJ"},
			{FerryID: 2, State: "idle", Capacity: 50, Location: "CUJ"},
		},
	})
	require.Len(t, points, 3)

	tick := lineProtocol(points[0])
	assert.True(t, strings.HasPrefix(tick, MeasurementTick+",run="+run.ID.String()+",status=NORMAL "))
	assert.Contains(t, tick, "queue_total=15i")
	assert.Contains(t, tick, "peak=true")
	assert.Equal(t, run.StartedAt.Add(90*time.Minute), points[0].Time())

	crossing := lineProtocol(points[1])
	assert.Contains(t, crossing, "direction=SLZ_TO_CUJ")
	assert.NotContains(t, crossing, "location=")
	assert.Contains(t, crossing, "boarded=50i")

	idle := lineProtocol(points[2])
	assert.Contains(t, idle, "location=CUJ")
	assert.Contains(t, idle, "ferry=2")
}

func TestEventPoint(t *testing.T) {
	run := testRun()
	ferry := 3
	p := eventPoint(run, &core.RunEvent{
		SimMinutes: 30, Clock: "06:30", Kind: core.EventFailure, FerryID: &ferry, From: "loading", To: "maintenance",
	})
	lp := lineProtocol(p)
	assert.Contains(t, lp, "ferry=3")
	assert.Contains(t, lp, "kind=failure")
	assert.Contains(t, lp, `to="maintenance"`)

	fleet := lineProtocol(eventPoint(run, &core.RunEvent{Kind: core.EventPeak, Clock: "07:00"}))
	assert.NotContains(t, fleet, "ferry=")
	assert.NotContains(t, fleet, "from=")
}

func TestBackend_BackupWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "logs", "influx.lp.gz")
	b := New(unreachable(), backup, zerolog.Nop())
	require.NoError(t, b.Init())
	assert.False(t, b.manager.IsValid)

	run := testRun()
	require.NoError(t, b.StartRun(run))
	require.NoError(t, b.RecordTick(&core.TickSample{
		RunID: run.ID, Tick: 1, SimMinutes: 1, Status: "NORMAL",
		Ferries: []core.FerrySample{{FerryID: 1, State: "loading", Capacity: 50, Location: "SLZ"}},
	}))
	require.NoError(t, b.RecordEvent(&core.RunEvent{Kind: core.EventPeak, SimMinutes: 60}))
	require.NoError(t, b.EndRun(&core.RunSummary{Grade: "HEALTHY", TotalTime: 960}))
	require.NoError(t, b.Close())

	lines := readBackup(t, backup)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementTick))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementState))
	assert.True(t, strings.HasPrefix(lines[2], MeasurementEvent))
	assert.True(t, strings.HasPrefix(lines[3], MeasurementSummary))
}

func TestBackend_RequiresRun(t *testing.T) {
	b := New(unreachable(), filepath.Join(t.TempDir(), "b.lp.gz"), zerolog.Nop())
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Error(t, b.RecordTick(&core.TickSample{}))
	assert.Error(t, b.RecordEvent(&core.RunEvent{}))
	assert.Error(t, b.EndRun(&core.RunSummary{}))
}

func TestManager_NoBackupPath(t *testing.T) {
	m := NewManager(zerolog.Nop(), unreachable(), "")
	assert.Error(t, m.Connect(t.Context()))
	assert.Error(t, m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1)))
	assert.NoError(t, m.Close())
}
