package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/internal/storage"
	gormstorage "github.com/ferryqueue/ferrysim/internal/storage/gorm"
	"github.com/ferryqueue/ferrysim/internal/storage/influx"
	"github.com/ferryqueue/ferrysim/internal/storage/memory"
	pgstorage "github.com/ferryqueue/ferrysim/internal/storage/postgres"
	sqlitestorage "github.com/ferryqueue/ferrysim/internal/storage/sqlite"
	wsstorage "github.com/ferryqueue/ferrysim/internal/storage/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// storageDeps carries what the backends need from the CLI.
type storageDeps struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
	Start    time.Time
}

func createStorageBackend(cfg config.StorageConfig, deps storageDeps) (storage.Multi, error) {
	types := cfg.Types()
	if len(types) == 0 {
		types = []string{"memory"}
	}

	gormCfg := gormstorage.Config{
		BatchSize:     cfg.Gorm.BatchSize,
		FlushInterval: cfg.Gorm.FlushInterval,
	}
	stamp := deps.Start.Format("20060102_150405")

	var backends storage.Multi
	for _, t := range types {
		switch t {
		case "memory":
			backends = append(backends, memory.New(cfg.Memory))
			deps.Logger.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir)

		case "sqlite":
			dumpPath := timestampedPath(cfg.SQLite.DumpPath, stamp)
			backend, err := sqlitestorage.New(sqlitestorage.Config{
				DumpInterval: cfg.SQLite.DumpInterval,
				DumpPath:     dumpPath,
				Name:         AppName + "_" + stamp,
				Gorm:         gormCfg,
			}, deps.Logger, deps.DBLogger)
			if err != nil {
				return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
			}
			backends = append(backends, backend)
			deps.Logger.Info("SQLite storage backend initialized", "dumpPath", dumpPath)

		case "postgres":
			backends = append(backends, pgstorage.New(pgstorage.Dependencies{
				Database: config.GetDatabaseConfig(),
				Gorm:     gormCfg,
				Logger:   deps.Logger,
				DBLogger: deps.DBLogger,
			}))
			deps.Logger.Info("Postgres storage backend initialized")

		case "websocket":
			wsCfg := config.GetWebsocketConfig()
			url := wsCfg.URL
			if url == "" {
				url = wsstorage.HTTPToWS(viper.GetString("api.serverUrl")) + "/api"
			}
			secret := wsCfg.Secret
			if secret == "" {
				secret = viper.GetString("api.apiKey")
			}
			backends = append(backends, wsstorage.New(wsstorage.Config{
				URL:    url,
				Secret: secret,
				Logger: deps.Logger,
			}))
			deps.Logger.Info("WebSocket storage backend initialized", "url", url)

		case "influx":
			influxCfg := config.GetInfluxConfig()
			backupPath := filepath.Join(influxCfg.BackupDir, fmt.Sprintf("%s_influx_%s.lp.gz", AppName, stamp))
			backends = append(backends, influx.New(influxCfg, backupPath, deps.DBLogger))
			deps.Logger.Info("InfluxDB storage backend initialized", "url", influxCfg.URL())

		default:
			return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, t)
		}
	}
	return backends, nil
}

// timestampedPath turns "runs/ferrysim.db" into "runs/ferrysim_<stamp>.db" so
// every run leaves its own backup.
func timestampedPath(path, stamp string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + stamp + ext
}
