package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ferryqueue/ferrysim/internal/api"
	"github.com/ferryqueue/ferrysim/internal/config"
	"github.com/ferryqueue/ferrysim/internal/database"
	"github.com/ferryqueue/ferrysim/internal/dispatcher"
	"github.com/ferryqueue/ferrysim/internal/geo"
	"github.com/ferryqueue/ferrysim/internal/logging"
	"github.com/ferryqueue/ferrysim/internal/monitor"
	intOtel "github.com/ferryqueue/ferrysim/internal/otel"
	"github.com/ferryqueue/ferrysim/internal/runner"
	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/ferryqueue/ferrysim/internal/storage"
	"github.com/ferryqueue/ferrysim/internal/storage/memory"
	"github.com/ferryqueue/ferrysim/internal/worker"
	"github.com/ferryqueue/ferrysim/pkg/core"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var AppName = "ferrysim"

const flushTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}

	configDir, _ := flags.GetString("config-dir")
	usingDefaults, err := loadConfig(configDir, flags)
	if err != nil {
		return err
	}

	cmd, rest := "run", flags.Args()
	if len(rest) > 0 {
		cmd, rest = strings.ToLower(rest[0]), rest[1:]
	}

	switch cmd {
	case "run":
		return runDay(out, usingDefaults)
	case "show":
		if len(rest) == 0 {
			return errors.New("show: no export file provided")
		}
		return showExports(out, rest)
	case "migrate":
		dir := filepath.Dir(viper.GetString("storage.sqlite.dumpPath"))
		if len(rest) > 0 {
			dir = rest[0]
		}
		return migrateBackups(out, dir)
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, Version, BuildDate)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	flags.String("config-dir", ".", "directory containing ferrysim.json")
	flags.Int64("seed", 0, "random seed, 0 picks one from the clock")
	flags.Float64("speed", 1, "time scale applied to every tick")
	flags.Duration("interval", 0, "wall-clock time between ticks, 0 runs headless")
	flags.String("storage", "memory", "comma separated storage backends")
	flags.String("log-level", "info", "log level")
	flags.String("name", AppName, "run name")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [run | show <export>... | migrate [dir] | version]\n", AppName)
		flags.PrintDefaults()
	}
	return flags
}

var flagKeys = map[string]string{
	"seed":      "run.seed",
	"speed":     "run.timeScale",
	"interval":  "run.tickInterval",
	"storage":   "storage.type",
	"log-level": "logLevel",
	"name":      "run.name",
}

// loadConfig reads the config file and binds the flags over it. A missing
// file is not an error; defaults are used and usingDefaults is set.
func loadConfig(dir string, flags *pflag.FlagSet) (usingDefaults bool, err error) {
	if err := config.Load(dir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return false, err
		}
		usingDefaults = true
	}
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return usingDefaults, fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return usingDefaults, nil
}

// newRun describes the operating day about to be simulated.
func newRun(rc config.RunConfig, cfg sim.Config, route config.RouteConfig, start time.Time) (*core.Run, error) {
	slz, err := geo.NewTerminal(sim.SLZ.String(), route.SLZName, route.SLZPosition)
	if err != nil {
		return nil, fmt.Errorf("invalid SLZ position: %w", err)
	}
	cuj, err := geo.NewTerminal(sim.CUJ.String(), route.CUJName, route.CUJPosition)
	if err != nil {
		return nil, fmt.Errorf("invalid CUJ position: %w", err)
	}
	r, err := geo.NewRoute(slz, cuj)
	if err != nil {
		return nil, err
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("error encoding config: %w", err)
	}

	seed := rc.Seed
	if seed == 0 {
		seed = start.UnixNano()
	}
	return &core.Run{
		ID:        uuid.New(),
		Name:      rc.Name,
		Seed:      seed,
		StartedAt: start,
		Config:    cfgJSON,
		RouteKm:   r.Km,
		Terminals: r.Terminals,
	}, nil
}

func runDay(out io.Writer, usingDefaults bool) error {
	start := time.Now()

	simCfg, err := config.GetSimulationConfig()
	if err != nil {
		return err
	}
	rc := config.GetRunConfig()
	rec, err := newRun(rc, simCfg, config.GetRouteConfig(), start)
	if err != nil {
		return err
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("error creating logs directory: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, AppName, start)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OTel provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	// set once the runner exists; read from log handlers on any goroutine
	var current atomic.Pointer[runner.Runner]
	slogs := logging.NewSlogManager()
	slogs.SetContextProvider(func() []slog.Attr {
		attrs := []slog.Attr{slog.String("runId", rec.ID.String())}
		if r := current.Load(); r != nil {
			attrs = append(attrs, slog.String("clock", sim.FormatClock(r.Clock(), simCfg)))
		}
		return attrs
	})
	slogs.Setup(logFile, viper.GetString("logLevel"), provider.LoggerProvider())
	logger := slogs.Logger()
	if usingDefaults {
		logger.Warn("No config file found, using defaults")
	}
	logger.Info("Logging to file", "path", logPath, "version", Version)

	zlog := logging.NewZerolog(logFile, viper.GetString("logLevel"))

	backend, err := createStorageBackend(config.GetStorageConfig(), storageDeps{
		Logger:   slogs.Component("storage"),
		DBLogger: zlog,
		Start:    start,
	})
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	workers := worker.NewManager(worker.Dependencies{
		Logger:     slogs.Component("worker"),
		TickBuffer: config.GetDispatcherConfig().BufferSize,
	}, backend)
	workers.RegisterHandlers(d)

	if _, err := d.Dispatch(dispatcher.Event{Command: runner.CmdRunStart, Payload: rec, Timestamp: start}); err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to start run: %w", err)
	}

	r, err := runner.New(simCfg, runner.Options{
		Seed:         rec.Seed,
		BaseDelta:    rc.BaseDelta,
		TimeScale:    rc.TimeScale,
		TickInterval: rc.TickInterval,
		Publisher:    d,
		Logger:       slogs.Component("runner"),
	})
	if err != nil {
		_ = backend.Close()
		return err
	}
	current.Store(r)

	var status *monitor.Service
	if mc := config.GetMonitorConfig(); mc.Enabled {
		status = monitor.NewService(monitor.Dependencies{
			Snapshot:   r.Snapshot,
			Config:     r.Config,
			StatusFile: mc.StatusFile,
			Interval:   mc.Interval,
			Logger:     slogs.Component("monitor"),
		})
		if err := status.Start(); err != nil {
			logger.Error("Failed to start status monitor", "error", err)
			status = nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := r.Start(ctx)
	stop()
	if errors.Is(runErr, context.Canceled) {
		logger.Warn("Run interrupted", "clock", sim.FormatClock(r.Clock(), simCfg))
		runErr = nil
	}

	if status != nil {
		status.Stop()
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	if err := d.Flush(flushCtx); err != nil {
		logger.Error("Timed out flushing recorded ticks", "error", err)
	}
	cancel()

	var summary *core.RunSummary
	result, err := d.Dispatch(dispatcher.Event{
		Command:   runner.CmdRunEnd,
		Payload:   runner.RunEndPayload{State: r.Snapshot(), Config: r.Config(), EndedAt: time.Now()},
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error("Failed to end run", "error", err)
	}
	if s, ok := result.(*core.RunSummary); ok {
		summary = s
	}
	d.Close()

	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}

	printReport(out, rec, summary)

	if apiCfg := config.GetAPIConfig(); apiCfg.Enabled {
		uploadExport(backend, apiCfg, slogs.Component("api"))
	}

	flushCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Flush(flushCtx); err != nil {
		logger.Error("Failed to flush telemetry", "error", err)
	}
	return runErr
}

func uploadExport(backend storage.Multi, cfg config.APIConfig, log *slog.Logger) {
	up, ok := backend.Uploadable()
	if !ok {
		log.Warn("No backend produced an uploadable export")
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		log.Warn("Export file missing, skipping upload")
		return
	}

	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		log.Error("Upload server unreachable", "url", cfg.ServerURL, "error", err)
		return
	}
	meta := up.GetExportMetadata()
	if meta.Tag == "" {
		meta.Tag = cfg.Tag
	}
	if err := client.Upload(path, meta); err != nil {
		log.Error("Failed to upload run", "path", path, "error", err)
		return
	}
	log.Info("Uploaded run", "path", path, "url", cfg.ServerURL)
}

func showExports(out io.Writer, paths []string) error {
	for _, path := range paths {
		export, err := memory.ReadExport(path)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", path, err)
		}
		if export.Run == nil {
			return fmt.Errorf("%s: export has no run", path)
		}
		printReport(out, export.Run, export.Summary)
		fmt.Fprintf(out, "ticks: %d, events: %d\n", len(export.Ticks), len(export.Events))
	}
	return nil
}

func migrateBackups(out io.Writer, dir string) error {
	zlog := logging.NewZerolog(os.Stderr, viper.GetString("logLevel"))
	db := database.NewManager(zlog)
	if err := db.ConnectPostgres(config.GetDatabaseConfig()); err != nil {
		return err
	}
	defer db.Close()
	if err := db.Setup(); err != nil {
		return err
	}

	migrated, err := db.MigrateBackups(dir)
	if err != nil {
		return err
	}
	for _, path := range migrated {
		fmt.Fprintln(out, "migrated", path)
	}
	fmt.Fprintf(out, "%d backup(s) migrated from %s\n", len(migrated), dir)
	return nil
}
