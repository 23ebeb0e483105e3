package multiview

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 2.0, 0)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second, // stays capped
	}

	for i, w := range want {
		got := b.Next()
		if got != w {
			t.Errorf("Next() call %d = %v, want %v", i+1, got, w)
		}
	}

	if got := b.Attempts(); got != len(want) {
		t.Errorf("Attempts() = %d, want %d", got, len(want))
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 2.0, 0)

	b.Next()
	b.Next()
	b.Next()

	b.Reset()

	if got := b.Attempts(); got != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", got)
	}
	if got := b.Next(); got != 100*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want %v", got, 100*time.Millisecond)
	}
}

func TestBackoffPeekDoesNotAdvance(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 2.0, 0)

	b.Next()
	b.Next()

	first := b.Peek()
	second := b.Peek()
	if first != second {
		t.Errorf("Peek() advanced: %v then %v", first, second)
	}
	if first != 400*time.Millisecond {
		t.Errorf("Peek() after two delays = %v, want %v", first, 400*time.Millisecond)
	}
	if got := b.Attempts(); got != 2 {
		t.Errorf("Attempts() after Peek = %d, want 2", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	b := NewBackoff(base, time.Minute, 2.0, 0.5)

	// First delay is pre-jitter 100ms; with 50% jitter it must land in
	// [100ms, 150ms).
	for i := 0; i < 50; i++ {
		got := b.Next()
		if got < base || got >= base+base/2 {
			t.Fatalf("jittered delay %v outside [%v, %v)", got, base, base+base/2)
		}
		b.Reset()
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0, 0, -1)

	if got := b.Peek(); got != defaultBackoffBase {
		t.Errorf("default base = %v, want %v", got, defaultBackoffBase)
	}

	// Drive well past the cap and confirm the pre-jitter delay saturates at
	// the default max.
	for i := 0; i < 10; i++ {
		b.Next()
	}
	if got := b.Peek(); got != defaultBackoffMax {
		t.Errorf("saturated delay = %v, want %v", got, defaultBackoffMax)
	}
}

func TestBackoffNeverDecreasesBeforeCap(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 10*time.Second, 1.7, 0)

	prev := time.Duration(0)
	for i := 0; i < 30; i++ {
		got := b.Next()
		if got < prev {
			t.Fatalf("delay decreased at attempt %d: %v after %v", i+1, got, prev)
		}
		prev = got
	}
}
