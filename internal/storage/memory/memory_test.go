// internal/storage/memory/memory_test.go
package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/internal/storage"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verify Backend implements storage.Backend and storage.Uploadable at compile time
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Uploadable = (*Backend)(nil)
)

func testRun() *core.Run {
	return &core.Run{
		ID:        uuid.New(),
		Name:      "Weekday Peak",
		Seed:      42,
		StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
	}
}

func TestInitClose(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.NoError(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestRecording(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	run := testRun()
	require.NoError(t, b.StartRun(run))

	require.NoError(t, b.RecordTick(&core.TickSample{RunID: run.ID, Tick: 1}))
	require.NoError(t, b.RecordTick(&core.TickSample{RunID: run.ID, Tick: 2}))
	require.NoError(t, b.RecordEvent(&core.RunEvent{RunID: run.ID, Kind: core.EventPeak}))

	ticks := b.Ticks()
	require.Len(t, ticks, 2)
	assert.Equal(t, uint64(2), ticks[1].Tick)
	assert.Len(t, b.Events(), 1)

	// returned slices are copies
	ticks[0].Tick = 99
	assert.Equal(t, uint64(1), b.Ticks()[0].Tick)
}

func TestStartRun_ResetsRecording(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.RecordTick(&core.TickSample{Tick: 1}))

	require.NoError(t, b.StartRun(testRun()))
	assert.Empty(t, b.Ticks())
	assert.Empty(t, b.GetExportedFilePath())
}

func TestEndRun_WithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.Error(t, b.EndRun(&core.RunSummary{}))
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartRun(testRun()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.RecordTick(&core.TickSample{Tick: uint64(i*100 + j)})
				_ = b.RecordEvent(&core.RunEvent{Kind: core.EventTransition})
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.Ticks(), 1000)
	assert.Len(t, b.Events(), 1000)
}

func TestGetExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.Equal(t, core.UploadMetadata{}, b.GetExportMetadata())

	require.NoError(t, b.StartRun(testRun()))
	require.NoError(t, b.EndRun(&core.RunSummary{TotalTime: 960}))

	meta := b.GetExportMetadata()
	assert.Equal(t, "Weekday Peak", meta.RunName)
	assert.Equal(t, 960.0, meta.Duration)
	assert.Equal(t, filepath.Dir(b.GetExportedFilePath()), b.cfg.OutputDir)
}
