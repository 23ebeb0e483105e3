// Package influxdb provides InfluxDB connectivity for ViewMux Core.
//
// It wraps the official influxdb-client-go v2 library with ViewMux-specific
// patterns for connection management, telemetry writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series storage for channel telemetry:
//   - Connection state transitions (who went Degraded, and when)
//   - Command execution latency and outcome
//   - Heartbeat probe results
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "viewmux",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric("power.query", "ok", 38*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). Telemetry volume tracks command traffic, which the
// half-duplex wire already caps at a handful of points per second.
package influxdb
