// Package dispatcher routes the runner's events (run start, ticks, control
// changes, run end) to recording handlers, either inline or through a
// per-command queue drained by its own goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Queued is the result of a successful dispatch to a buffered handler.
const Queued = "queued"

// Event is a named notification published by the simulation runner.
// Payload is interpreted by the handler registered for Command.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

type HandlerFunc func(Event) (any, error)

// Logger is satisfied by logging.DispatcherLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type Option func(*handlerConfig)

type handlerConfig struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered queues up to size events and handles them on a dedicated
// goroutine, in order. Dispatch then returns Queued immediately.
func Buffered(size int) Option {
	return func(c *handlerConfig) { c.bufferSize = size }
}

// Blocking makes Dispatch wait for room in a full queue instead of failing
// with ErrQueueFull. Ticks use it so no sample is lost.
func Blocking() Option {
	return func(c *handlerConfig) { c.blocking = true }
}

// Logged logs every event at debug level and every failure at error level.
func Logged() Option {
	return func(c *handlerConfig) { c.logged = true }
}

type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  instruments

	mu      sync.RWMutex
	queues  map[string]chan Event
	closed  bool
	workers sync.WaitGroup

	// queued plus in-flight buffered events
	pending sync.WaitGroup
}

func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]chan Event),
		logger:   logger,
	}
	ins, err := newInstruments(d.queueLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = ins
	return d, nil
}

// Register installs h for command, replacing any earlier handler. Register
// all handlers before the first Dispatch.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var cfg handlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logged {
		h = d.logged(command, h)
	}
	if cfg.bufferSize > 0 {
		h = d.buffered(command, cfg, h)
	}
	d.handlers[command] = h
}

func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return h(e)
}

// Flush waits until every event accepted by a buffered handler has been
// processed, or until ctx is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting buffered events, lets the queues drain and waits for
// their goroutines to exit. Inline handlers keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) queueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lengths := make(map[string]int, len(d.queues))
	for cmd, q := range d.queues {
		lengths[cmd] = len(q)
	}
	return lengths
}

func (d *Dispatcher) buffered(command string, cfg handlerConfig, h HandlerFunc) HandlerFunc {
	q := make(chan Event, cfg.bufferSize)
	d.mu.Lock()
	d.queues[command] = q
	d.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("command", command))

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range q {
			if _, err := h(e); err != nil {
				d.metrics.failed.Add(context.Background(), 1, attrs)
				if !cfg.logged {
					d.logger.Error("buffered event failed", "command", command, "error", err)
				}
			}
			d.metrics.processed.Add(context.Background(), 1, attrs)
			d.pending.Done()
		}
	}()

	return func(e Event) (any, error) {
		// the read lock keeps Close from closing q under a pending send
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s", ErrClosed, command)
		}

		d.pending.Add(1)
		if cfg.blocking {
			q <- e
			return Queued, nil
		}
		select {
		case q <- e:
			return Queued, nil
		default:
			d.pending.Done()
			d.metrics.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
