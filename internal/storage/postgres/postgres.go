// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// It connects on Init and delegates recording to the GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/internal/database"
	gormstorage "github.com/ferryqueue/ferrysim/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	Database config.DatabaseConfig
	Gorm     gormstorage.Config
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

// Backend implements storage.Backend on a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
	db   *database.Manager
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		deps: deps,
		db:   database.NewManager(deps.DBLogger),
	}
}

// Init connects, migrates tables and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if err := b.db.ConnectPostgres(b.deps.Database); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     b.db.DB,
		Logger: b.deps.Logger,
	}, b.deps.Gorm)
	return b.Backend.Init()
}

// Close stops the writer and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend != nil {
		if err := b.Backend.Close(); err != nil {
			return err
		}
	}
	return b.db.Close()
}
