// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/pkg/core"
)

// Backend stores run data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	run     *core.Run
	ticks   []core.TickSample
	events  []core.RunEvent
	summary *core.RunSummary

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run, discarding anything recorded before.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = run
	b.ticks = nil
	b.events = nil
	b.summary = nil
	b.lastExportPath = ""
	return nil
}

// EndRun stores the summary and exports the run to disk.
func (b *Backend) EndRun(summary *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no run started")
	}
	b.summary = summary
	return b.exportJSON()
}

// RecordTick appends a tick sample.
func (b *Backend) RecordTick(t *core.TickSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticks = append(b.ticks, *t)
	return nil
}

// RecordEvent appends a run event.
func (b *Backend) RecordEvent(e *core.RunEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return nil
}

// Ticks returns a copy of the recorded tick samples.
func (b *Backend) Ticks() []core.TickSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.TickSample(nil), b.ticks...)
}

// Events returns a copy of the recorded run events.
func (b *Backend) Events() []core.RunEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.RunEvent(nil), b.events...)
}

// GetExportedFilePath returns the path of the last export, empty before EndRun.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var meta core.UploadMetadata
	if b.run != nil {
		meta.RunName = b.run.Name
	}
	if b.summary != nil {
		meta.Duration = b.summary.TotalTime
	}
	return meta
}
