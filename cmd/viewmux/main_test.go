package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/viewmux/viewmux-core/internal/multiview"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("VIEWMUX_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ValidationFailure verifies run fails when the config is invalid.
func TestRun_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
serial:
  port: ""

database:
  path: "/tmp/test.db"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("VIEWMUX_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty serial port")
	}
}

// TestRun_StartupAndShutdown exercises the full wiring without a device
// attached: the channel keeps retrying the port in the background and the
// service still starts and stops cleanly.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "viewmux.db")

	configContent := fmt.Sprintf(`
serial:
  port: "/dev/null"
  baud_rate: 115200
  command_timeout: 1.0
  read_timeout_ms: 50

heartbeat:
  interval: 30
  probe_timeout: 1.0
  failure_threshold: 3

reconnect:
  base_delay: 0.2
  max_delay: 1.0
  multiplier: 2.0
  jitter: 0.2

channel:
  queue_depth: 8
  grace_window: 0.5

database:
  path: "%s"
  wal_mode: true
  busy_timeout: 5
  retention_days: 7

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`, dbPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("VIEWMUX_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("VIEWMUX_CONFIG", "")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("VIEWMUX_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestCommandOutcome verifies error-to-tag mapping for telemetry.
func TestCommandOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: "ok"},
		{name: "timeout", err: multiview.ErrTimeout, want: "timeout"},
		{name: "mismatch", err: multiview.ErrProtocolMismatch, want: "protocol_mismatch"},
		{name: "link failure", err: multiview.ErrLinkFailure, want: "link_failure"},
		{name: "not connected", err: multiview.ErrNotConnected, want: "not_connected"},
		{name: "queue full", err: multiview.ErrQueueFull, want: "queue_full"},
		{name: "invalid params", err: multiview.ErrInvalidParams, want: "invalid_params"},
		{name: "closed", err: multiview.ErrClosed, want: "closed"},
		{name: "wrapped", err: fmt.Errorf("probe: %w", multiview.ErrTimeout), want: "timeout"},
		{name: "unknown", err: errors.New("something else"), want: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandOutcome(tt.err); got != tt.want {
				t.Errorf("commandOutcome(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
