package policy

import (
	"testing"
	"time"
)

func TestRapidFireTracker_Threshold(t *testing.T) {
	tracker := NewRapidFireTracker(5, 10_000, 0.1)
	now := time.UnixMilli(1_000_000)

	// The first five requests stay under the threshold.
	for i := 0; i < 5; i++ {
		if tracker.Observe("ip:192.0.2.1", now) {
			t.Fatalf("request %d should be under the threshold", i+1)
		}
	}
	// The sixth exceeds it.
	if !tracker.Observe("ip:192.0.2.1", now) {
		t.Error("expected the sixth request to trip rapid-fire")
	}

	// Other identities are unaffected.
	if tracker.Observe("ip:192.0.2.2", now) {
		t.Error("expected a fresh identity to start clean")
	}
}

func TestRapidFireTracker_WindowRollover(t *testing.T) {
	tracker := NewRapidFireTracker(3, 1000, 0.1)
	base := time.UnixMilli(10_000)

	for i := 0; i < 4; i++ {
		tracker.Observe("user:alice", base)
	}
	if !tracker.Observe("user:alice", base) {
		t.Fatal("expected rapid-fire inside the window")
	}

	// Next fixed window starts clean.
	next := time.UnixMilli(11_000)
	if tracker.Observe("user:alice", next) {
		t.Error("expected the count to reset at the window boundary")
	}
}

func TestRapidFireTracker_Defaults(t *testing.T) {
	tracker := NewRapidFireTracker(0, 0, 0)
	if tracker.threshold != DefaultRapidFireThreshold {
		t.Errorf("expected default threshold %d, got %d", DefaultRapidFireThreshold, tracker.threshold)
	}
	if tracker.windowMs != DefaultRapidFireWindowMs {
		t.Errorf("expected default window %d, got %d", DefaultRapidFireWindowMs, tracker.windowMs)
	}
	if tracker.Multiplier() != DefaultRapidFireMultiplier {
		t.Errorf("expected default multiplier %v, got %v", DefaultRapidFireMultiplier, tracker.Multiplier())
	}
}
