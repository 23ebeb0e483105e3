package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStateTransition records a connection state change.
//
// The write is non-blocking; data is batched and sent asynchronously.
// From/to states are tags (low cardinality), the connection epoch is a
// field (one UUID per physical session).
//
// Parameters:
//   - from: State the connection left (e.g. "connected")
//   - to: State the connection entered (e.g. "degraded")
//   - epoch: UUID of the connection session involved
//
// Example:
//
//	client.WriteStateTransition("connected", "degraded", epoch)
func (c *Client) WriteStateTransition(from, to, epoch string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_state",
		map[string]string{
			"from": from,
			"to":   to,
		},
		map[string]interface{}{
			"epoch": epoch,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandMetric records one command execution against the device.
//
// Used for tracking round-trip latency per command and the split between
// successful, timed-out, and rejected executions.
//
// Parameters:
//   - command: Semantic command name (e.g. "window.input", "power.query")
//   - outcome: Result category (e.g. "ok", "timeout", "link_failure")
//   - latency: Wire round-trip time; zero when the command never got out
func (c *Client) WriteCommandMetric(command, outcome string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"commands",
		map[string]string{
			"command": command,
			"outcome": outcome,
		},
		map[string]interface{}{
			"latency_ms": float64(latency) / float64(time.Millisecond),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteProbeResult records a heartbeat probe outcome.
//
// Parameters:
//   - success: Whether the probe round-trip completed in time
func (c *Client) WriteProbeResult(success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"probes",
		nil,
		map[string]interface{}{
			"success": success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("process_stats",
//	    map[string]string{"host": "viewmux-01"},
//	    map[string]interface{}{"goroutines": 42})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
