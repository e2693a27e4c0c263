package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ferryqueue/ferrysim/internal/sim"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Snapshot   func() sim.State
	Config     func() sim.Config
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopped   chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus renders the current snapshot as status file lines.
func (s *Service) GetStatus() []string {
	st := s.deps.Snapshot()
	cfg := s.deps.Config()

	run := "paused"
	if st.Running {
		run = "running"
	}

	out := []string{
		fmt.Sprintf("clock:      %s (%s)", sim.FormatClock(st.Time, cfg), run),
		fmt.Sprintf("status:     %s - %s", st.Status(), sim.StatusMessage(st)),
		fmt.Sprintf("queues:     SLZ=%d CUJ=%d total=%d max=%d",
			st.Queue(sim.SLZ).Len(), st.Queue(sim.CUJ).Len(), st.QueueLength(), st.MaxQueueLength),
		fmt.Sprintf("head wait:  SLZ=%.0f CUJ=%.0f min", st.LongestWait(sim.SLZ), st.LongestWait(sim.CUJ)),
		fmt.Sprintf("processed:  %d (avg wait %.1f min)", st.VehiclesProcessed, sim.AverageWaitTime(st)),
		fmt.Sprintf("fleet:      %.1f%% utilization, %d in transit", sim.AverageUtilization(st), st.InTransit()),
	}
	for _, f := range st.Ferries {
		out = append(out, "  "+ferryLine(f))
	}
	for _, a := range sim.Alerts(st) {
		out = append(out, "ALERT "+a.Message)
	}
	return out
}

func ferryLine(f sim.Ferry) string {
	var where string
	if loc, ok := f.Location(); ok {
		where = "at " + loc.String()
	} else if dir, ok := f.Direction(); ok {
		where = dir.String()
	}
	line := fmt.Sprintf("ferry %d: %-11s %-10s %d/%d", f.ID, f.State(), where, f.Load(), f.Capacity)
	if until, ok := f.MaintenanceUntil(); ok {
		line += fmt.Sprintf(" until %.0f", until)
	}
	return strings.TrimRight(line, " ")
}

// WriteStatus overwrites the status file with the current status.
func (s *Service) WriteStatus() error {
	if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	body := strings.Join(s.GetStatus(), "\n") + "\n"
	if err := os.WriteFile(s.deps.StatusFile, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	stop, stopped := s.stopChan, s.stopped
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(stopped)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "file", s.deps.StatusFile)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor after a last write.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	stopped := s.stopped
	s.mu.Unlock()
	<-stopped
}
