package multiview

import (
	"testing"
	"time"
)

func TestStateCacheUpdate(t *testing.T) {
	c := NewStateCache()

	obs, changed := c.Update("power", "on", "epoch-1")
	if !changed {
		t.Error("first Update() changed = false, want true")
	}
	if obs.Key != "power" || obs.Value != "on" || obs.Epoch != "epoch-1" {
		t.Errorf("stored observation = %+v", obs)
	}
	if obs.ObservedAt.IsZero() {
		t.Error("ObservedAt not set")
	}

	// Same value again: timestamp refreshes, but it is not a change.
	_, changed = c.Update("power", "on", "epoch-1")
	if changed {
		t.Error("identical Update() changed = true, want false")
	}

	_, changed = c.Update("power", "off", "epoch-1")
	if !changed {
		t.Error("differing Update() changed = false, want true")
	}

	got, ok := c.Get("power")
	if !ok {
		t.Fatal("Get() ok = false after Update")
	}
	if got.Value != "off" {
		t.Errorf("Get().Value = %q, want %q", got.Value, "off")
	}
}

func TestStateCacheRefreshesTimestamp(t *testing.T) {
	c := NewStateCache()

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return ts }

	c.Update("power", "on", "e1")

	ts = ts.Add(time.Minute)
	c.Update("power", "on", "e1")

	got, _ := c.Get("power")
	if !got.ObservedAt.Equal(ts) {
		t.Errorf("ObservedAt = %v, want refreshed %v", got.ObservedAt, ts)
	}
}

func TestStateCacheGetMissing(t *testing.T) {
	c := NewStateCache()

	if _, ok := c.Get("never.observed"); ok {
		t.Error("Get() ok = true for missing key")
	}
}

func TestStateCacheSnapshotIsCopy(t *testing.T) {
	c := NewStateCache()
	c.Update("power", "on", "e1")
	c.Update("audio.volume", "40", "e1")

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}

	snap["power"] = Observation{Key: "power", Value: "tampered"}
	delete(snap, "audio.volume")

	got, _ := c.Get("power")
	if got.Value != "on" {
		t.Errorf("cache value = %q after snapshot mutation, want %q", got.Value, "on")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d after snapshot mutation, want 2", c.Len())
	}
}
