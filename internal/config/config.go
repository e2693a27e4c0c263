package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ferryqueue/ferrysim/internal/sim"
	"github.com/spf13/viper"
)

// RunConfig controls how the scheduler drives the engine.
type RunConfig struct {
	Name string
	// Seed of the random source; 0 picks one from the clock.
	Seed int64
	// BaseDelta is simulated minutes per tick before scaling.
	BaseDelta float64
	TimeScale float64
	// TickInterval is the wall-clock cadence; 0 runs as fast as possible.
	TickInterval time.Duration
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// GormConfig tunes the batched writer shared by the SQL backends
type GormConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// StorageConfig selects and configures the recording backends
type StorageConfig struct {
	// Type is one backend name or a comma-separated list.
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
	Gorm   GormConfig
}

// Types splits Type into backend names.
func (c StorageConfig) Types() []string {
	var out []string
	for _, t := range strings.Split(c.Type, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// URL returns the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// WebsocketConfig holds live streaming settings
type WebsocketConfig struct {
	URL    string
	Secret string
}

// APIConfig holds upload settings
type APIConfig struct {
	Enabled   bool
	ServerURL string
	APIKey    string
	Tag       string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// MonitorConfig holds status file settings
type MonitorConfig struct {
	Enabled    bool
	StatusFile string
	Interval   time.Duration
}

// DispatcherConfig sizes the dispatcher queues.
type DispatcherConfig struct {
	// BufferSize is the tick queue capacity.
	BufferSize int
}

// RouteConfig places the two terminals. Positions are "longitude,latitude"
// in WGS84.
type RouteConfig struct {
	SLZName     string
	SLZPosition string
	CUJName     string
	CUJPosition string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
// Environment variables prefixed FERRYSIM_ override file values.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("FERRYSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("ferrysim")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	d := sim.DefaultConfig()
	viper.SetDefault("sim.ferryCount", d.FerryCount)
	viper.SetDefault("sim.ferryCapacity", d.FerryCapacity)
	viper.SetDefault("sim.operationStart", d.OperationStart)
	viper.SetDefault("sim.operationEnd", d.OperationEnd)
	viper.SetDefault("sim.dailyArrivals", d.DailyArrivals)
	viper.SetDefault("sim.peakHours", []map[string]any{{"start": 7, "end": 9}, {"start": 17, "end": 19}})
	viper.SetDefault("sim.peakPercentage", d.PeakShare)
	viper.SetDefault("sim.carPercentage", d.CarShare)
	viper.SetDefault("sim.embarkTimePerVehicle", d.EmbarkMinutes)
	viper.SetDefault("sim.crossingTime", d.CrossingMinutes)
	viper.SetDefault("sim.disembarkTimePerVehicle", d.DisembarkMinutes)
	viper.SetDefault("sim.maintenanceInterval", d.MaintenanceInterval)
	viper.SetDefault("sim.maintenanceDuration", d.MaintenanceDuration)
	viper.SetDefault("sim.downtimeProbability", d.DowntimeProbability)
	viper.SetDefault("sim.minDepartureFillRatio", d.MinDepartureFillRatio)

	viper.SetDefault("run.name", "ferrysim")
	viper.SetDefault("run.seed", 0)
	viper.SetDefault("run.baseDelta", 1.0)
	viper.SetDefault("run.timeScale", 1.0)
	viper.SetDefault("run.tickInterval", "0s")

	viper.SetDefault("route.slz.name", "Ponta da Espera")
	viper.SetDefault("route.slz.position", "-44.3556,-2.5489")
	viper.SetDefault("route.cuj.name", "Cujupe")
	viper.SetDefault("route.cuj.position", "-44.4305,-2.3857")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./runs")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./runs/ferrysim.db")
	viper.SetDefault("storage.gorm.batchSize", 500)
	viper.SetDefault("storage.gorm.flushInterval", "2s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "ferrysim")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "ferrysim")
	viper.SetDefault("influx.bucket", "ferry-ticks")
	viper.SetDefault("influx.backupDir", "./logs")

	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.tag", "ferry")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "ferrysim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", false)
	viper.SetDefault("monitor.statusFile", "./logs/status.txt")
	viper.SetDefault("monitor.interval", "1s")

	viper.SetDefault("dispatcher.bufferSize", 10000)
}

// GetSimulationConfig assembles the engine configuration.
func GetSimulationConfig() (sim.Config, error) {
	var peaks []sim.HourRange
	if err := viper.UnmarshalKey("sim.peakHours", &peaks); err != nil {
		return sim.Config{}, fmt.Errorf("error decoding sim.peakHours: %w", err)
	}
	return sim.Config{
		FerryCount:            viper.GetInt("sim.ferryCount"),
		FerryCapacity:         viper.GetInt("sim.ferryCapacity"),
		OperationStart:        viper.GetInt("sim.operationStart"),
		OperationEnd:          viper.GetInt("sim.operationEnd"),
		DailyArrivals:         viper.GetInt("sim.dailyArrivals"),
		PeakHours:             peaks,
		PeakShare:             viper.GetFloat64("sim.peakPercentage"),
		CarShare:              viper.GetFloat64("sim.carPercentage"),
		EmbarkMinutes:         viper.GetFloat64("sim.embarkTimePerVehicle"),
		CrossingMinutes:       viper.GetFloat64("sim.crossingTime"),
		DisembarkMinutes:      viper.GetFloat64("sim.disembarkTimePerVehicle"),
		MaintenanceInterval:   viper.GetFloat64("sim.maintenanceInterval"),
		MaintenanceDuration:   viper.GetFloat64("sim.maintenanceDuration"),
		DowntimeProbability:   viper.GetFloat64("sim.downtimeProbability"),
		MinDepartureFillRatio: viper.GetFloat64("sim.minDepartureFillRatio"),
	}, nil
}

// GetRunConfig returns scheduler settings.
func GetRunConfig() RunConfig {
	return RunConfig{
		Name:         viper.GetString("run.name"),
		Seed:         viper.GetInt64("run.seed"),
		BaseDelta:    viper.GetFloat64("run.baseDelta"),
		TimeScale:    viper.GetFloat64("run.timeScale"),
		TickInterval: viper.GetDuration("run.tickInterval"),
	}
}

// GetRouteConfig returns terminal names and positions.
func GetRouteConfig() RouteConfig {
	return RouteConfig{
		SLZName:     viper.GetString("route.slz.name"),
		SLZPosition: viper.GetString("route.slz.position"),
		CUJName:     viper.GetString("route.cuj.name"),
		CUJPosition: viper.GetString("route.cuj.position"),
	}
}

// GetStorageConfig returns storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Gorm: GormConfig{
			BatchSize:     viper.GetInt("storage.gorm.batchSize"),
			FlushInterval: viper.GetDuration("storage.gorm.flushInterval"),
		},
	}
}

// GetDatabaseConfig returns PostgreSQL settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
		SSLMode:  viper.GetString("db.sslmode"),
	}
}

// GetInfluxConfig returns InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetWebsocketConfig returns streaming settings.
func GetWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		URL:    viper.GetString("websocket.url"),
		Secret: viper.GetString("websocket.secret"),
	}
}

// GetAPIConfig returns upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Tag:       viper.GetString("api.tag"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns status file settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

// GetDispatcherConfig returns dispatcher queue settings.
func GetDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{BufferSize: viper.GetInt("dispatcher.bufferSize")}
}
