// ViewMux Core - Multiviewer Control Service
//
// This is the main entry point for the ViewMux Core application.
// ViewMux drives a UHD-401MV HDMI multiviewer over its RS-232 control
// port, providing:
//   - Serialised command execution over the half-duplex wire
//   - Automatic reconnection with exponential backoff
//   - A local journal of every observed state change
//   - Optional time-series telemetry
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/viewmux/viewmux-core/migrations"

	"github.com/viewmux/viewmux-core/internal/history"
	"github.com/viewmux/viewmux-core/internal/infrastructure/config"
	"github.com/viewmux/viewmux-core/internal/infrastructure/database"
	"github.com/viewmux/viewmux-core/internal/infrastructure/influxdb"
	"github.com/viewmux/viewmux-core/internal/infrastructure/logging"
	"github.com/viewmux/viewmux-core/internal/multiview"
	"github.com/viewmux/viewmux-core/internal/serialio"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often the journal retention window is enforced.
const pruneInterval = 6 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ViewMux Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Observation journal
	journal := history.NewRepository(db.DB)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Enforce journal retention in the background
	var pruneWG sync.WaitGroup
	if retention := cfg.GetRetention(); retention > 0 {
		pruneWG.Add(1)
		go func() {
			defer pruneWG.Done()
			runPruneLoop(ctx, journal, retention, log)
		}()
		defer pruneWG.Wait()
		log.Info("journal pruning scheduled", "retention_days", cfg.Database.RetentionDays)
	} else {
		log.Info("journal pruning disabled")
	}

	// Enumerate host serial ports for startup diagnostics
	if ports, portsErr := serialio.ListPorts(); portsErr == nil {
		log.Info("serial ports detected", "ports", ports, "configured", cfg.Serial.Port)
	}

	// Wire the command channel around the serial port
	dial := func(dialCtx context.Context) (multiview.Link, error) {
		port, dialErr := serialio.Open(dialCtx, serialio.Config{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.GetReadTimeout(),
		})
		if dialErr != nil {
			return nil, dialErr
		}
		return port, nil
	}

	channel, err := multiview.NewChannel(dial, multiview.Config{
		CommandTimeout:    cfg.GetCommandTimeout(),
		QueueDepth:        cfg.Channel.QueueDepth,
		GraceWindow:       cfg.GetGraceWindow(),
		HeartbeatInterval: cfg.GetHeartbeatInterval(),
		ProbeTimeout:      cfg.GetProbeTimeout(),
		FailureThreshold:  cfg.Heartbeat.FailureThreshold,
		BackoffBase:       cfg.GetBaseDelay(),
		BackoffMax:        cfg.GetMaxDelay(),
		BackoffMultiplier: cfg.Reconnect.Multiplier,
		BackoffJitter:     cfg.Reconnect.Jitter,
	})
	if err != nil {
		return fmt.Errorf("creating command channel: %w", err)
	}

	channel.SetLogger(log.With("component", "channel"))
	channel.SetJournal(journal)
	if influxClient != nil {
		channel.SetTelemetry(&influxTelemetry{client: influxClient})
	}

	if startErr := channel.Start(); startErr != nil {
		return fmt.Errorf("starting command channel: %w", startErr)
	}
	defer func() {
		log.Info("closing command channel")
		if closeErr := channel.Close(); closeErr != nil {
			log.Error("error closing command channel", "error", closeErr)
		}
	}()
	log.Info("command channel started",
		"port", cfg.Serial.Port,
		"baud_rate", cfg.Serial.BaudRate,
	)

	// Verify infrastructure connections are healthy. Device presence is
	// deliberately not checked here: the channel keeps reconnecting while
	// the multiviewer is off or unplugged.
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Command channel (fails pending requests, stops loops)
	// 2. Journal pruner
	// 3. InfluxDB (if enabled, flushes telemetry)
	// 4. Database

	log.Info("ViewMux Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VIEWMUX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VIEWMUX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// runPruneLoop deletes journal rows older than retention, once at startup
// and then every pruneInterval, until ctx is cancelled.
func runPruneLoop(ctx context.Context, journal *history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		pruned, err := journal.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("journal prune failed", "error", err)
		case pruned > 0:
			log.Info("journal pruned", "rows", pruned, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// influxTelemetry adapts the InfluxDB client to the channel's Telemetry
// interface, flattening domain types to line-protocol friendly strings.
type influxTelemetry struct {
	client *influxdb.Client
}

// RecordStateTransition implements multiview.Telemetry.
func (t *influxTelemetry) RecordStateTransition(from, to multiview.ConnectionState, epoch string) {
	t.client.WriteStateTransition(from.String(), to.String(), epoch)
}

// RecordCommand implements multiview.Telemetry.
func (t *influxTelemetry) RecordCommand(name string, latency time.Duration, err error) {
	t.client.WriteCommandMetric(name, commandOutcome(err), latency)
}

// RecordProbe implements multiview.Telemetry.
func (t *influxTelemetry) RecordProbe(success bool) {
	t.client.WriteProbeResult(success)
}

// commandOutcome maps a command's terminal error to a low-cardinality tag
// value.
func commandOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, multiview.ErrTimeout):
		return "timeout"
	case errors.Is(err, multiview.ErrProtocolMismatch):
		return "protocol_mismatch"
	case errors.Is(err, multiview.ErrLinkFailure):
		return "link_failure"
	case errors.Is(err, multiview.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, multiview.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, multiview.ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, multiview.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
