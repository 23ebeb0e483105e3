package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ViewMux Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Channel   ChannelConfig   `yaml:"channel"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SerialConfig contains the RS-232 port settings for the multiviewer.
// Framing is fixed by the device at 8 data bits, no parity, 1 stop bit.
type SerialConfig struct {
	// Port is the serial device path (e.g. /dev/ttyUSB0).
	Port string `yaml:"port"`

	// BaudRate is the line speed. The UHD-401MV is fixed at 115200.
	BaudRate int `yaml:"baud_rate"`

	// CommandTimeout is the default per-command response deadline in seconds.
	// Callers may override it per request. Fractional values are allowed.
	CommandTimeout float64 `yaml:"command_timeout"`

	// ReadTimeoutMS is the reader poll granularity in milliseconds. It bounds
	// how long a blocking read waits before rechecking for shutdown; it is not
	// a response deadline.
	ReadTimeoutMS int `yaml:"read_timeout_ms"`
}

// HeartbeatConfig contains the periodic device probe settings.
type HeartbeatConfig struct {
	// Interval between probes in seconds.
	Interval int `yaml:"interval"`

	// ProbeTimeout is the probe's own response deadline in seconds.
	// Kept short so a dead link is noticed within a few intervals.
	ProbeTimeout float64 `yaml:"probe_timeout"`

	// FailureThreshold is how many consecutive probe failures are tolerated
	// before the link is declared failed.
	FailureThreshold int `yaml:"failure_threshold"`
}

// ReconnectConfig contains the exponential backoff settings used when the
// serial link cannot be opened or has failed.
type ReconnectConfig struct {
	// BaseDelay is the first retry delay in seconds.
	BaseDelay float64 `yaml:"base_delay"`

	// MaxDelay caps the computed delay in seconds.
	MaxDelay float64 `yaml:"max_delay"`

	// Multiplier is the exponential growth factor per attempt.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the random fraction added on top of the computed delay,
	// in [0, 1]. A value of 0.2 adds up to 20% of the delay.
	Jitter float64 `yaml:"jitter"`
}

// ChannelConfig contains the command admission queue settings.
type ChannelConfig struct {
	// QueueDepth is the maximum number of requests queued or in flight.
	// Submissions beyond this fail immediately with a backpressure error.
	QueueDepth int `yaml:"queue_depth"`

	// GraceWindow is how long, in seconds, a request submitted while the
	// link is reconnecting will wait for Connected before failing.
	GraceWindow float64 `yaml:"grace_window"`
}

// DatabaseConfig contains SQLite settings for the observation journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays is how many days of journal rows to keep. Older rows
	// are pruned in the background. 0 disables pruning.
	RetentionDays int `yaml:"retention_days"`
}

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VIEWMUX_SECTION_KEY
// For example: VIEWMUX_SERIAL_PORT, VIEWMUX_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Timing defaults match the device's observed behaviour: commands answer
// within two seconds, and a power-cycled unit is back on the bus within
// thirty.
func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:           "/dev/ttyUSB0",
			BaudRate:       115200,
			CommandTimeout: 2.0,
			ReadTimeoutMS:  200,
		},
		Heartbeat: HeartbeatConfig{
			Interval:         30,
			ProbeTimeout:     2.0,
			FailureThreshold: 3,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:  1.0,
			MaxDelay:   30.0,
			Multiplier: 2.0,
			Jitter:     0.2,
		},
		Channel: ChannelConfig{
			QueueDepth:  32,
			GraceWindow: 0.5,
		},
		Database: DatabaseConfig{
			Path:          "./data/viewmux.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VIEWMUX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("VIEWMUX_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("VIEWMUX_SERIAL_BAUD_RATE"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = baud
		}
	}

	// Database
	if v := os.Getenv("VIEWMUX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("VIEWMUX_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("VIEWMUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("VIEWMUX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Serial validation
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.CommandTimeout <= 0 {
		errs = append(errs, "serial.command_timeout must be positive")
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		errs = append(errs, "serial.read_timeout_ms must be positive")
	}

	// Heartbeat validation
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be positive")
	}
	if c.Heartbeat.ProbeTimeout <= 0 {
		errs = append(errs, "heartbeat.probe_timeout must be positive")
	}
	if c.Heartbeat.FailureThreshold < 1 {
		errs = append(errs, "heartbeat.failure_threshold must be at least 1")
	}

	// Reconnect validation
	if c.Reconnect.BaseDelay <= 0 {
		errs = append(errs, "reconnect.base_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, "reconnect.max_delay must be at least base_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, "reconnect.jitter must be between 0 and 1")
	}

	// Channel validation
	if c.Channel.QueueDepth < 1 {
		errs = append(errs, "channel.queue_depth must be at least 1")
	}
	if c.Channel.GraceWindow < 0 {
		errs = append(errs, "channel.grace_window must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCommandTimeout returns the default per-command deadline as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return secondsToDuration(c.Serial.CommandTimeout)
}

// GetReadTimeout returns the reader poll granularity as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMS) * time.Millisecond
}

// GetHeartbeatInterval returns the probe interval as a Duration.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.Interval) * time.Second
}

// GetProbeTimeout returns the probe deadline as a Duration.
func (c *Config) GetProbeTimeout() time.Duration {
	return secondsToDuration(c.Heartbeat.ProbeTimeout)
}

// GetBaseDelay returns the first reconnect delay as a Duration.
func (c *Config) GetBaseDelay() time.Duration {
	return secondsToDuration(c.Reconnect.BaseDelay)
}

// GetMaxDelay returns the reconnect delay cap as a Duration.
func (c *Config) GetMaxDelay() time.Duration {
	return secondsToDuration(c.Reconnect.MaxDelay)
}

// GetGraceWindow returns the not-yet-connected admission grace as a Duration.
func (c *Config) GetGraceWindow() time.Duration {
	return secondsToDuration(c.Channel.GraceWindow)
}

// GetRetention returns the journal retention window as a Duration.
// Zero means pruning is disabled.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// secondsToDuration converts fractional seconds to a Duration.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
