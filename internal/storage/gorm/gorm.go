// Package gormstorage implements the storage.Backend interface on top of GORM
// with internal buffers and a background DB writer goroutine.
// The SQLite and Postgres backends embed it and only supply the connection.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ferryqueue/ferrysim/internal/model"
	"github.com/ferryqueue/ferrysim/internal/model/convert"
	"github.com/ferryqueue/ferrysim/internal/queue"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"gorm.io/gorm"
)

const (
	defaultBatchSize     = 500
	defaultFlushInterval = 2 * time.Second
)

// Config tunes the background writer.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// buffers holds the write buffers for batch DB insertion.
type buffers struct {
	Ticks  *queue.Buffer[model.TickSample]
	Events *queue.Buffer[model.RunEvent]
}

// Backend implements storage.Backend using GORM with buffer-based batch writes.
type Backend struct {
	deps    Dependencies
	cfg     Config
	buffers *buffers

	mu  sync.Mutex // guards run and serializes writes
	run *model.Run

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies, cfg Config) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps: deps,
		cfg:  cfg,
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database connection")
	}

	b.deps.Logger.Info("Migrating schema")
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.buffers = &buffers{
		Ticks:  queue.NewBuffer[model.TickSample](),
		Events: queue.NewBuffer[model.RunEvent](),
	}
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return nil
}

// StartRun inserts the run row synchronously so buffered rows can reference it.
func (b *Backend) StartRun(run *core.Run) error {
	row, err := convert.CoreToRun(*run)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	b.run = &row
	return nil
}

// EndRun flushes pending rows and stores the summary on the run row.
func (b *Backend) EndRun(summary *core.RunSummary) error {
	if err := b.Flush(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return fmt.Errorf("no run started")
	}
	convert.ApplySummary(b.run, *summary)
	err := b.deps.DB.Model(b.run).Select("ended_at", "grade", "summary").Updates(b.run).Error
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordTick converts and buffers a tick sample.
func (b *Backend) RecordTick(t *core.TickSample) error {
	b.buffers.Ticks.Push(convert.CoreToTickSample(*t))
	if b.buffers.Ticks.Len() >= b.cfg.BatchSize {
		return b.Flush()
	}
	return nil
}

// RecordEvent converts and buffers a run event.
func (b *Backend) RecordEvent(e *core.RunEvent) error {
	b.buffers.Events.Push(convert.CoreToRunEvent(*e))
	return nil
}

// Flush writes all buffered rows. Failed batches are put back for the next attempt.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := writeBuffer(b.deps.DB, b.buffers.Ticks, b.cfg.BatchSize); err != nil {
		return fmt.Errorf("error creating tick samples: %w", err)
	}
	if err := writeBuffer(b.deps.DB, b.buffers.Events, b.cfg.BatchSize); err != nil {
		return fmt.Errorf("error creating run events: %w", err)
	}
	return nil
}

// writeBuffer writes all items from a buffer to the database in a transaction.
func writeBuffer[T any](db *gorm.DB, buf *queue.Buffer[T], batchSize int) error {
	if buf.Empty() {
		return nil
	}

	items := buf.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		buf.Push(items...)
		return err
	}
	return nil
}

// writerLoop periodically drains buffers into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Final flush failed", "error", err)
			}
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Flush failed", "error", err)
				continue
			}
			b.deps.Logger.Debug("Flushed buffers", "duration", time.Since(start))
		}
	}
}
