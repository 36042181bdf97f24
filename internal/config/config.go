package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "markedfordeath.cfg.json"

// MarkConfig holds the values the singleton record is created from.
type MarkConfig struct {
	DefaultMarkedPlayerID   uint64 `json:"defaultMarkedPlayerID" mapstructure:"defaultMarkedPlayerID"`
	DefaultMarkedPlayerName string `json:"defaultMarkedPlayerName" mapstructure:"defaultMarkedPlayerName"`
}

// GridConfig holds the location grid geometry.
type GridConfig struct {
	CellSize     float64 `json:"cellSize" mapstructure:"cellSize"`
	WorldSize    float64 `json:"worldSize" mapstructure:"worldSize"`
	JitterRadius int     `json:"jitterRadius" mapstructure:"jitterRadius"`
}

// RefreshConfig holds scheduler periods.
type RefreshConfig struct {
	Interval     time.Duration `json:"interval" mapstructure:"interval"`
	ConnectDelay time.Duration `json:"connectDelay" mapstructure:"connectDelay"`
}

// JSONConfig holds flat-file storage settings
type JSONConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SQLiteConfig holds SQLite storage settings. An empty path keeps the
// database in memory and dumps it to disk on an interval.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig holds storage backend settings
type StorageConfig struct {
	Type    string        `json:"type" mapstructure:"type"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	JSON    JSONConfig    `json:"json" mapstructure:"json"`
	SQLite  SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// HostConfig holds the host link endpoint
type HostConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// NotifyConfig holds display panel notification settings
type NotifyConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Retries int           `json:"retries" mapstructure:"retries"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// MonitorConfig holds status monitor settings. StatusFile is relative to logsDir.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./mfdlogs")

	viper.SetDefault("mark.defaultMarkedPlayerID", 0)
	viper.SetDefault("mark.defaultMarkedPlayerName", "Unassigned")

	viper.SetDefault("grid.cellSize", 150)
	viper.SetDefault("grid.worldSize", 4500)
	viper.SetDefault("grid.jitterRadius", 100)

	viper.SetDefault("refresh.interval", "30m")
	viper.SetDefault("refresh.connectDelay", "10s")

	viper.SetDefault("storage.type", "json")
	viper.SetDefault("storage.timeout", "5s")
	viper.SetDefault("storage.json.path", "./data/MarkedForDeathData.json")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./data/markedfordeath.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "markedfordeath")

	viper.SetDefault("host.url", "ws://localhost:28018/markedfordeath")
	viper.SetDefault("host.secret", "")

	viper.SetDefault("notify.enabled", true)
	viper.SetDefault("notify.timeout", "2s")
	viper.SetDefault("notify.retries", 1)

	viper.SetDefault("dispatcher.queueSize", 1024)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "markedfordeath")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "markedfordeath")
	viper.SetDefault("influx.bucket", "mark-transfers")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "30s")
	viper.SetDefault("monitor.statusFile", "status.json")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file is
// not an error; defaults and MFD_* environment variables still apply.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("MFD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Watch calls fn every time the config file changes on disk.
// It does nothing if no file was loaded.
func Watch(fn func()) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(fsnotify.Event) {
		fn()
	})
	viper.WatchConfig()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetMarkConfig returns the mark defaults. A default id of 0 always carries the
// Unassigned name.
func GetMarkConfig() MarkConfig {
	cfg := MarkConfig{
		DefaultMarkedPlayerID:   viper.GetUint64("mark.defaultMarkedPlayerID"),
		DefaultMarkedPlayerName: viper.GetString("mark.defaultMarkedPlayerName"),
	}
	if cfg.DefaultMarkedPlayerID == 0 {
		cfg.DefaultMarkedPlayerName = "Unassigned"
	}
	return cfg
}

// GetGridConfig returns the grid geometry.
func GetGridConfig() GridConfig {
	return GridConfig{
		CellSize:     viper.GetFloat64("grid.cellSize"),
		WorldSize:    viper.GetFloat64("grid.worldSize"),
		JitterRadius: viper.GetInt("grid.jitterRadius"),
	}
}

// GetRefreshConfig returns the scheduler periods.
func GetRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:     viper.GetDuration("refresh.interval"),
		ConnectDelay: viper.GetDuration("refresh.connectDelay"),
	}
}

// GetStorageConfig returns the storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:    viper.GetString("storage.type"),
		Timeout: viper.GetDuration("storage.timeout"),
		JSON: JSONConfig{
			Path: viper.GetString("storage.json.path"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetHostConfig returns the host link endpoint.
func GetHostConfig() HostConfig {
	return HostConfig{
		URL:    viper.GetString("host.url"),
		Secret: viper.GetString("host.secret"),
	}
}

// GetNotifyConfig returns the notification settings.
func GetNotifyConfig() NotifyConfig {
	return NotifyConfig{
		Enabled: viper.GetBool("notify.enabled"),
		Timeout: viper.GetDuration("notify.timeout"),
		Retries: viper.GetInt("notify.retries"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetMonitorConfig returns the status monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetGraylogConfig returns the GELF output configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
