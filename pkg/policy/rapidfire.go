package policy

import (
	"sync"
	"time"
)

// Rapid-fire defaults: more than 50 requests inside a 10 second window
// cuts capacity to a tenth.
const (
	DefaultRapidFireThreshold  = 50
	DefaultRapidFireWindowMs   = 10_000
	DefaultRapidFireMultiplier = 0.1
)

// RapidFireTracker counts requests per identity in fixed windows. It is
// deliberately process-local: the signal marks bursts hitting this instance
// and needs no round trip to the shared store.
type RapidFireTracker struct {
	threshold  int64
	windowMs   int64
	multiplier float64

	mu     sync.Mutex
	counts map[string]*rapidFireWindow
}

type rapidFireWindow struct {
	WindowStart int64
	Count       int64
}

// NewRapidFireTracker creates a tracker. Zero values select the defaults.
func NewRapidFireTracker(threshold int64, windowMs int64, multiplier float64) *RapidFireTracker {
	if threshold <= 0 {
		threshold = DefaultRapidFireThreshold
	}
	if windowMs <= 0 {
		windowMs = DefaultRapidFireWindowMs
	}
	if multiplier <= 0 || multiplier > 1 {
		multiplier = DefaultRapidFireMultiplier
	}
	return &RapidFireTracker{
		threshold:  threshold,
		windowMs:   windowMs,
		multiplier: multiplier,
		counts:     make(map[string]*rapidFireWindow),
	}
}

// Observe records one request and reports whether the identity is over the
// rapid-fire threshold in the current window.
func (t *RapidFireTracker) Observe(identity string, now time.Time) bool {
	nowMs := now.UnixMilli()
	windowStart := (nowMs / t.windowMs) * t.windowMs

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.counts[identity]
	if !ok || w.WindowStart != windowStart {
		w = &rapidFireWindow{WindowStart: windowStart}
		t.counts[identity] = w
		// Sweep stale windows once the map grows.
		if len(t.counts) > 10_000 {
			for id, stale := range t.counts {
				if stale.WindowStart != windowStart {
					delete(t.counts, id)
				}
			}
		}
	}
	w.Count++
	return w.Count > t.threshold
}

// Multiplier returns the capacity multiplier applied while an identity is
// over the threshold.
func (t *RapidFireTracker) Multiplier() float64 {
	return t.multiplier
}
