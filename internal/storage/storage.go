// internal/storage/storage.go
package storage

import (
	"errors"
	"fmt"

	"github.com/ferryqueue/ferrysim/pkg/core"
)

// ErrUnknownBackend is returned when storage.type names no known backend.
var ErrUnknownBackend = errors.New("unknown storage type")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management
	StartRun(run *core.Run) error
	EndRun(summary *core.RunSummary) error

	// Recording
	RecordTick(t *core.TickSample) error
	RecordEvent(e *core.RunEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the run archive server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// Multi fans every call out to several backends.
// All backends are called even when one fails; errors are joined.
type Multi []Backend

// Init initializes every backend.
func (m Multi) Init() error {
	return m.each("init", Backend.Init)
}

// Close closes every backend.
func (m Multi) Close() error {
	return m.each("close", Backend.Close)
}

// StartRun registers run with every backend.
func (m Multi) StartRun(run *core.Run) error {
	return m.each("start run", func(b Backend) error { return b.StartRun(run) })
}

// EndRun finalizes every backend.
func (m Multi) EndRun(summary *core.RunSummary) error {
	return m.each("end run", func(b Backend) error { return b.EndRun(summary) })
}

// RecordTick records t in every backend.
func (m Multi) RecordTick(t *core.TickSample) error {
	return m.each("record tick", func(b Backend) error { return b.RecordTick(t) })
}

// RecordEvent records e in every backend.
func (m Multi) RecordEvent(e *core.RunEvent) error {
	return m.each("record event", func(b Backend) error { return b.RecordEvent(e) })
}

// Uploadable returns the first backend that produces an uploadable export.
func (m Multi) Uploadable() (Uploadable, bool) {
	for _, b := range m {
		if u, ok := b.(Uploadable); ok {
			return u, true
		}
	}
	return nil, false
}

func (m Multi) each(op string, fn func(Backend) error) error {
	var errs []error
	for _, b := range m {
		if err := fn(b); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", op, b, err))
		}
	}
	return errors.Join(errs...)
}
