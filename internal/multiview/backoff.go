package multiview

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	defaultBackoffBase       = time.Second
	defaultBackoffMax        = 30 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBackoffJitter     = 0.2
)

// Backoff produces reconnect delays: exponential growth from a base up to a
// cap, plus uniform jitter so repeated open attempts do not fall into
// lockstep with a periodically resetting device.
//
// Attempts are unbounded; there is no terminal give-up state. Reset is
// called after a successful connect so the next failure starts cheap again.
//
// Thread Safety: all methods are safe for concurrent use.
type Backoff struct {
	mu         sync.Mutex
	base       time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempt    int
	rng        *rand.Rand
}

// NewBackoff builds a schedule. Zero or out-of-range values fall back to the
// defaults (1s base, 30s cap, ×2.0, 20% jitter).
func NewBackoff(base, max time.Duration, multiplier, jitter float64) *Backoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	if multiplier < 1 {
		multiplier = defaultBackoffMultiplier
	}
	if jitter < 0 || jitter > 1 {
		jitter = defaultBackoffJitter
	}
	return &Backoff{
		base:       base,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the current attempt and advances the counter.
// Pre-jitter delays are non-decreasing up to the cap.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.delayFor(b.attempt)
	b.attempt++

	if b.jitter > 0 {
		delay += time.Duration(b.rng.Float64() * b.jitter * float64(delay))
	}
	return delay
}

// Peek returns the pre-jitter delay for the current attempt without
// advancing the counter.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delayFor(b.attempt)
}

// Reset zeroes the attempt counter. Called after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempts returns how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// delayFor computes min(max, base × multiplier^attempt). Caller holds b.mu.
func (b *Backoff) delayFor(attempt int) time.Duration {
	d := float64(b.base) * math.Pow(b.multiplier, float64(attempt))
	if d >= float64(b.max) || d < 0 || math.IsInf(d, 1) {
		return b.max
	}
	return time.Duration(d)
}
