package multiview

import (
	"sync"
	"time"
)

// Observation is one cached device state value.
type Observation struct {
	// Key is the semantic state key, e.g. "power" or "window.2.input".
	Key string

	// Value is the normalised state value.
	Value string

	// Epoch identifies the physical connection session that produced the
	// observation.
	Epoch string

	// ObservedAt is when the value was parsed off the wire.
	ObservedAt time.Time
}

// StateCache is a best-effort view of device state keyed by semantic state
// keys. Entries are overwritten, never purged; staleness is the reader's
// concern via ObservedAt. The cache never answers with data it was not told.
//
// Thread Safety: all methods are safe for concurrent use.
type StateCache struct {
	mu      sync.RWMutex
	entries map[string]Observation
	now     func() time.Time
}

// NewStateCache returns an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{
		entries: make(map[string]Observation),
		now:     time.Now,
	}
}

// Update overwrites the entry for key. It returns the stored observation and
// whether the value differs from what was cached before (a fresh timestamp
// on an identical value is not a change).
func (c *StateCache) Update(key, value, epoch string) (Observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.entries[key]
	obs := Observation{Key: key, Value: value, Epoch: epoch, ObservedAt: c.now()}
	c.entries[key] = obs
	return obs, !existed || prev.Value != value
}

// Get returns the observation for key, if any.
func (c *StateCache) Get(key string) (Observation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obs, ok := c.entries[key]
	return obs, ok
}

// Snapshot returns a copy of every cached observation.
func (c *StateCache) Snapshot() map[string]Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Observation, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of cached keys.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
