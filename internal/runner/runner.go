// Package runner drives the simulation clock. It owns the current state,
// advances it on a ticker and publishes every step for recording.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferryqueue/ferrysim/internal/dispatcher"
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrInvalidSpeed is returned by SetSpeed for non-positive or NaN factors.
var ErrInvalidSpeed = errors.New("invalid speed")

// Speed bounds accepted by SetSpeed.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// summaryInterval is the simulated time that must pass between two pause
// summaries.
const summaryInterval = 60.0

const headlessPausePoll = 10 * time.Millisecond

const instrumentationName = "github.com/ferryqueue/ferrysim/internal/runner"

// Options configures a Runner.
type Options struct {
	Seed      int64
	BaseDelta float64
	TimeScale float64
	// TickInterval is the wall-clock period between steps; zero runs headless.
	TickInterval time.Duration
	Publisher    Publisher
	Logger       *slog.Logger
}

// Runner is the external scheduler around sim.Advance.
type Runner struct {
	mu sync.RWMutex

	cfg       sim.Config
	state     sim.State
	rng       sim.Source
	baseDelta float64
	timeScale float64
	ticks     uint64
	finished  bool

	lastSummaryAt float64

	// simulated minutes, readable without mu
	clock atomic.Uint64

	interval time.Duration
	pub      Publisher
	log      *slog.Logger

	done     chan struct{}
	doneOnce sync.Once

	tickCounter metric.Int64Counter
}

// New builds a paused runner for cfg.
func New(cfg sim.Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.BaseDelta <= 0 || math.IsNaN(opts.BaseDelta) {
		opts.BaseDelta = 1
	}
	if opts.TimeScale == 0 {
		opts.TimeScale = 1
	}
	scale, err := clampSpeed(opts.TimeScale)
	if err != nil {
		return nil, err
	}
	if opts.Publisher == nil {
		opts.Publisher = discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Runner{
		cfg:       cfg,
		state:     sim.NewState(cfg),
		rng:       sim.NewSource(opts.Seed),
		baseDelta: opts.BaseDelta,
		timeScale: scale,
		interval:  opts.TickInterval,
		pub:       opts.Publisher,
		log:       opts.Logger,
		done:      make(chan struct{}),
	}
	if err := r.initMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	r.tickCounter, err = m.Int64Counter(
		"ferrysim.ticks",
		metric.WithDescription("Simulation steps advanced"),
	)
	if err != nil {
		return fmt.Errorf("creating tick counter: %w", err)
	}

	queueGauge, err := m.Int64ObservableGauge(
		"ferrysim.queue.length",
		metric.WithDescription("Vehicles waiting at both terminals"),
	)
	if err != nil {
		return fmt.Errorf("creating queue gauge: %w", err)
	}
	utilGauge, err := m.Float64ObservableGauge(
		"ferrysim.fleet.utilization",
		metric.WithDescription("Average fleet utilization in percent"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("creating utilization gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			s := r.Snapshot()
			o.ObserveInt64(queueGauge, int64(s.QueueLength()))
			o.ObserveFloat64(utilGauge, sim.AverageUtilization(s))
			return nil
		},
		queueGauge, utilGauge,
	)
	if err != nil {
		return fmt.Errorf("registering runner callback: %w", err)
	}
	return nil
}

// Start resumes the simulation and steps it until the operating day ends or
// ctx is done. It blocks; Done is closed when it returns.
func (r *Runner) Start(ctx context.Context) error {
	defer r.doneOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	if !r.state.Running {
		r.state = sim.Toggle(r.state)
	}
	interval := r.interval
	r.mu.Unlock()

	r.log.Info("Run started", "interval", interval, "timeScale", r.Speed())

	if interval <= 0 {
		return r.runHeadless(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, finished := r.Step(); finished {
				return nil
			}
		}
	}
}

func (r *Runner) runHeadless(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := r.Snapshot()
		if !before.Running {
			if r.Finished() {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(headlessPausePoll):
			}
			continue
		}
		if _, finished := r.Step(); finished {
			return nil
		}
	}
}

// Step advances the state by one tick and publishes it. It returns the new
// snapshot and whether the operating day is over.
func (r *Runner) Step() (sim.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.state
	next := sim.Advance(prev, r.cfg, r.rng, r.baseDelta, r.timeScale)
	r.state = next
	r.clock.Store(math.Float64bits(next.Time))

	if prev.Running && !next.Running {
		r.finished = true
		r.log.Info("Operating day ended", "clock", sim.FormatClock(next.Time, r.cfg))
		return next, true
	}
	if next.Time == prev.Time {
		return next, r.finished
	}

	r.ticks++
	r.tickCounter.Add(context.Background(), 1)
	r.publish(CmdTick, TickPayload{Tick: r.ticks, Prev: prev, Next: next, Config: r.cfg})
	return next, false
}

// publish must be called with mu held so events keep their order.
func (r *Runner) publish(command string, payload any) {
	_, err := r.pub.Dispatch(dispatcher.Event{
		Command:   command,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		r.log.Warn("Failed to publish", "command", command, "error", err)
	}
}

// Snapshot returns the current state. States are immutable, so the caller
// may keep it.
func (r *Runner) Snapshot() sim.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Clock returns the simulated minutes since opening. Unlike Snapshot it
// never blocks, so log handlers may call it while a step is in progress.
func (r *Runner) Clock() float64 {
	return math.Float64frombits(r.clock.Load())
}

// Config returns the active configuration.
func (r *Runner) Config() sim.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Ticks returns the number of advancing steps since the last reset.
func (r *Runner) Ticks() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ticks
}

// Finished reports whether the operating day has ended.
func (r *Runner) Finished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

// Toggle pauses or resumes the run. It returns true when the run was paused
// and at least an hour of simulated time passed since the previous summary.
func (r *Runner) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = sim.Toggle(r.state)
	if r.state.Running {
		return false
	}
	if r.state.Time-r.lastSummaryAt >= summaryInterval {
		r.lastSummaryAt = r.state.Time
		return true
	}
	return false
}

// Reset replaces the state with a fresh, paused one for the current config.
func (r *Runner) Reset() sim.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = sim.Reset(r.cfg)
	r.clock.Store(math.Float64bits(r.state.Time))
	r.ticks = 0
	r.finished = false
	r.lastSummaryAt = 0
	r.publish(CmdSimEvent, SimEventPayload{Kind: core.EventReset, State: r.state, Config: r.cfg})
	return r.state
}

// Reconfigure applies cfg to the running fleet.
func (r *Runner) Reconfigure(cfg sim.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := sim.Reconfigure(r.state, cfg)
	if err != nil {
		return err
	}
	r.state = next
	r.cfg = cfg
	r.publish(CmdSimEvent, SimEventPayload{
		Kind:   core.EventReconfigure,
		State:  next,
		Config: cfg,
		Detail: fmt.Sprintf("ferries=%d capacity=%d", cfg.FerryCount, cfg.FerryCapacity),
	})
	return nil
}

// SetSpeed changes the time scale, clamped to [MinSpeed, MaxSpeed].
func (r *Runner) SetSpeed(f float64) error {
	scale, err := clampSpeed(f)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.timeScale = scale
	r.mu.Unlock()
	return nil
}

// Speed returns the current time scale.
func (r *Runner) Speed() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeScale
}

// Done is closed when Start returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func clampSpeed(f float64) (float64, error) {
	if math.IsNaN(f) || f <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSpeed, f)
	}
	return min(max(f, MinSpeed), MaxSpeed), nil
}
