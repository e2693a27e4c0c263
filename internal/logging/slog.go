package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const bridgeScope = "github.com/ferryqueue/ferrysim"

// SlogManager owns the application logger. Records fan out to a local sink
// (the log file, or the console when there is none) and optionally to OTel.
type SlogManager struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
	context  ContextProvider

	// console receives records when Setup gets no file.
	console io.Writer
}

// NewSlogManager creates a manager that logs to stdout until Setup is given a file.
func NewSlogManager() *SlogManager {
	return &SlogManager{console: os.Stdout}
}

// ParseLevel maps a config level name to a slog.Level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetContextProvider installs the run context callback. It takes effect on
// the next Setup.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.context = p
}

// Setup (re)builds the logger. A nil provider disables the OTel bridge.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.provider = provider
	opts := &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: utcTime}

	local := slog.Handler(slog.NewTextHandler(m.console, opts))
	if file != nil {
		local = slog.NewJSONHandler(file, opts)
	}

	var bridge slog.Handler
	if provider != nil {
		bridge = otelslog.NewHandler(bridgeScope, otelslog.WithLoggerProvider(provider))
	}

	var h slog.Handler = NewMultiHandler(local, bridge)
	if m.context != nil {
		h = NewContextHandler(h, m.context)
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// utcTime renders record timestamps as RFC3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Component returns a logger tagged with a component name.
func (m *SlogManager) Component(name string) *slog.Logger {
	return m.Logger().With("component", name)
}

// Flush pushes buffered OTel records, if any.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}
