package worker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ferryqueue/ferrysim/internal/storage"
	"github.com/ferryqueue/ferrysim/pkg/core"
)

// ErrNoRun is returned when recording arrives before run:start.
var ErrNoRun = errors.New("no run started")

// DefaultTickBuffer is the tick queue capacity when none is configured.
const DefaultTickBuffer = 10000

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger *slog.Logger
	// TickBuffer is the capacity of the buffered tick queue.
	TickBuffer int
}

// Manager turns runner events into storage records.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu  sync.RWMutex
	run *core.Run
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.TickBuffer <= 0 {
		deps.TickBuffer = DefaultTickBuffer
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Run returns the run being recorded, or nil before run:start.
func (m *Manager) Run() *core.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.run
}
