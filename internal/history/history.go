// Package history persists device state observations to SQLite.
//
// Every state change the channel observes (command responses and unsolicited
// status lines alike) is appended to the observations table, giving a local
// audit trail of what the device reported and when, even when the time-series
// database is unavailable. Rows are append-only; retention is enforced by
// periodic pruning.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/viewmux/viewmux-core/internal/multiview"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Entry is a single persisted observation row.
type Entry struct {
	// ID is the auto-incremented primary key for the row.
	ID int64

	// Key is the semantic state key, e.g. "power" or "window.2.input".
	Key string

	// Value is the normalised state value.
	Value string

	// Epoch identifies the connection session that produced the observation.
	Epoch string

	// ObservedAt is when the value was parsed off the wire (UTC).
	ObservedAt time.Time
}

// Repository stores and retrieves observation history in SQLite.
//
// It satisfies multiview.Journal so the channel can record state changes
// directly. All methods are safe for concurrent use.
type Repository struct {
	db *sql.DB
}

var _ multiview.Journal = (*Repository)(nil)

// NewRepository creates an observation history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *Repository: Repository instance ready for use
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record appends one observation to the journal.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - obs: Observation to persist; a zero ObservedAt is stamped with now
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Record(ctx context.Context, obs multiview.Observation) error {
	if obs.Key == "" {
		return fmt.Errorf("observation key is required")
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO observations (key, value, epoch, observed_at) VALUES (?, ?, ?, ?)",
		obs.Key,
		obs.Value,
		obs.Epoch,
		observedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting observation: %w", err)
	}

	return nil
}

// Recent returns the latest observations for a key, newest first.
//
// Rows sharing a second-resolution timestamp are ordered by insertion, so a
// burst of observations from one response still reads back in arrival order.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - key: Semantic state key to query
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: History entries ordered by observed_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Repository) Recent(ctx context.Context, key string, limit int) ([]Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("observation key is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, key, value, epoch, observed_at
		 FROM observations
		 WHERE key = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var observedAt string

		if err := rows.Scan(&entry.ID, &entry.Key, &entry.Value, &entry.Epoch, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}

		timestamp, err := parseObservedAt(observedAt)
		if err != nil {
			return nil, err
		}
		entry.ObservedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating observations: %w", err)
	}

	return entries, nil
}

// Prune deletes observations older than the given retention window.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (rows older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM observations WHERE observed_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting observations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseObservedAt parses a timestamp stored in SQLite.
func parseObservedAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("observed_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing observed_at: %w", err)
}
