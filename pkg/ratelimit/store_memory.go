// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// bucketRecord stores token bucket and leaky bucket state. Level is tokens
// for token buckets and volume for leaky buckets; it never leaves
// [0, capacity] except for the sub-unit overshoot a leaky admission allows.
type bucketRecord struct {
	Level  float64
	LastMs int64
}

// windowRecord stores fixed window state.
type windowRecord struct {
	Count       int64
	WindowStart int64
}

// streakRecord stores the consecutive-denial counter for a key.
type streakRecord struct {
	Count     int64
	ExpiresAt time.Time
}

// MemoryStore is an in-memory implementation of CounterStore.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. All evaluations for a key serialize on the
// store mutex, so concurrent callers observe the same admit-exactly-N
// behavior as a shared backend.
type MemoryStore struct {
	sliding map[string][]int64
	tokens  map[string]*bucketRecord
	leaky   map[string]*bucketRecord
	windows map[string]*windowRecord
	streaks map[string]*streakRecord
	mu      sync.Mutex
}

// NewMemoryStore creates a new in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sliding: make(map[string][]int64),
		tokens:  make(map[string]*bucketRecord),
		leaky:   make(map[string]*bucketRecord),
		windows: make(map[string]*windowRecord),
		streaks: make(map[string]*streakRecord),
	}
}

// EvaluateSlidingWindow admits while fewer than capacity timestamps live in
// the trailing window. Timestamps at or before now-window are dropped.
func (s *MemoryStore) EvaluateSlidingWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	cutoff := nowMs - cfg.WindowMs

	// Drop expired entries, tracking the oldest survivor.
	var live []int64
	oldest := int64(math.MaxInt64)
	for _, ts := range s.sliding[key] {
		if ts > cutoff {
			live = append(live, ts)
			if ts < oldest {
				oldest = ts
			}
		}
	}

	count := int64(len(live))
	if count < cfg.Capacity {
		live = append(live, nowMs)
		if nowMs < oldest {
			oldest = nowMs
		}
		s.sliding[key] = live
		return StoreResult{
			Allowed:   true,
			Current:   count + 1,
			Remaining: cfg.Capacity - count - 1,
			ResetAtMs: oldest + cfg.WindowMs,
		}, nil
	}

	s.sliding[key] = live
	return StoreResult{
		Allowed:   false,
		Current:   count,
		Remaining: 0,
		ResetAtMs: oldest + cfg.WindowMs,
		WaitMs:    oldest + cfg.WindowMs - nowMs,
	}, nil
}

// EvaluateTokenBucket refills tokens for the elapsed time and spends one on
// admission. New buckets start full.
func (s *MemoryStore) EvaluateTokenBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	ceiling := float64(cfg.BucketCeiling())

	rec, exists := s.tokens[key]
	if !exists {
		rec = &bucketRecord{Level: ceiling, LastMs: nowMs}
		s.tokens[key] = rec
	}

	elapsed := float64(nowMs-rec.LastMs) / 1000.0
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(ceiling, rec.Level+elapsed*cfg.RefillRate)

	res := StoreResult{}
	if tokens >= 1 {
		tokens--
		res.Allowed = true
		res.Remaining = int64(math.Floor(tokens))
		res.ResetAtMs = nowMs + ceilDivMs(ceiling-tokens, cfg.RefillRate)
	} else {
		res.WaitMs = ceilDivMs(1-tokens, cfg.RefillRate)
		res.ResetAtMs = nowMs + res.WaitMs
	}
	res.Current = int64(ceiling) - int64(math.Floor(tokens))

	// Persist on both outcomes so deny paths still advance the refill clock.
	rec.Level = tokens
	rec.LastMs = nowMs
	return res, nil
}

// EvaluateLeakyBucket drains volume for the elapsed time and adds one unit
// on admission. New buckets start empty.
func (s *MemoryStore) EvaluateLeakyBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()

	rec, exists := s.leaky[key]
	if !exists {
		rec = &bucketRecord{Level: 0, LastMs: nowMs}
		s.leaky[key] = rec
	}

	elapsed := float64(nowMs-rec.LastMs) / 1000.0
	if elapsed < 0 {
		elapsed = 0
	}
	volume := math.Max(0, rec.Level-elapsed*cfg.LeakRate)

	res := StoreResult{}
	if volume < float64(cfg.Capacity) {
		volume++
		res.Allowed = true
		res.ResetAtMs = nowMs + ceilDivMs(volume, cfg.LeakRate)
	} else {
		res.WaitMs = ceilDivMs(1, cfg.LeakRate)
		res.ResetAtMs = nowMs + res.WaitMs
	}
	res.Current = int64(math.Ceil(volume))
	res.Remaining = cfg.Capacity - res.Current
	if res.Remaining < 0 {
		res.Remaining = 0
	}

	rec.Level = volume
	rec.LastMs = nowMs
	return res, nil
}

// EvaluateFixedWindow increments the counter for the window bucket
// containing now. The count resets when now crosses a window boundary.
func (s *MemoryStore) EvaluateFixedWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	windowStart := (nowMs / cfg.WindowMs) * cfg.WindowMs

	rec, exists := s.windows[key]
	if !exists || rec.WindowStart != windowStart {
		rec = &windowRecord{WindowStart: windowStart}
		s.windows[key] = rec
	}
	rec.Count++

	res := StoreResult{
		Allowed:   rec.Count <= cfg.Capacity,
		Current:   rec.Count,
		Remaining: cfg.Capacity - rec.Count,
		ResetAtMs: windowStart + cfg.WindowMs,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.WaitMs = windowStart + cfg.WindowMs - nowMs
	}
	return res, nil
}

// IncrViolationStreak bumps the consecutive-denial counter for a key.
func (s *MemoryStore) IncrViolationStreak(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec, exists := s.streaks[key]
	if !exists || rec.ExpiresAt.Before(now) {
		rec = &streakRecord{}
		s.streaks[key] = rec
	}
	rec.Count++
	rec.ExpiresAt = now.Add(ttl)
	return rec.Count, nil
}

// ResetViolationStreak clears the consecutive-denial counter.
func (s *MemoryStore) ResetViolationStreak(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.streaks, key)
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sliding = make(map[string][]int64)
	s.tokens = make(map[string]*bucketRecord)
	s.leaky = make(map[string]*bucketRecord)
	s.windows = make(map[string]*windowRecord)
	s.streaks = make(map[string]*streakRecord)
	return nil
}

// Len returns the number of live counter records (for testing).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sliding) + len(s.tokens) + len(s.leaky) + len(s.windows)
}

// ceilDivMs converts amount/rate seconds to whole milliseconds, rounded up.
func ceilDivMs(amount, perSecond float64) int64 {
	if perSecond <= 0 {
		return 0
	}
	return int64(math.Ceil(amount / perSecond * 1000))
}
