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
	"time"
)

// CounterStore is the atomic persistence layer for counter records. Each
// Evaluate call is one admission attempt: it reads, updates, and persists
// the counter in a single atomic step, serialized per key. Callers never
// read a counter and write it back separately.
//
// The caller supplies now; the store performs no clock reads of its own.
// Implementations must be safe for concurrent use and must let an
// in-flight update run to completion even when ctx is cancelled mid-call.
type CounterStore interface {
	// EvaluateSlidingWindow drops timestamps at or before now-window,
	// admits if fewer than capacity remain, and records now on admission.
	EvaluateSlidingWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error)

	// EvaluateTokenBucket refills tokens for the elapsed time, capped at
	// the bucket ceiling, and spends one token on admission.
	EvaluateTokenBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error)

	// EvaluateLeakyBucket drains volume for the elapsed time, floored at
	// zero, and adds one unit on admission.
	EvaluateLeakyBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error)

	// EvaluateFixedWindow increments the counter for the window bucket
	// containing now and admits while the count stays within capacity.
	EvaluateFixedWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error)

	// IncrViolationStreak bumps the consecutive-denial counter for a key
	// and returns the new value. The record expires after ttl.
	IncrViolationStreak(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// ResetViolationStreak clears the consecutive-denial counter.
	ResetViolationStreak(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// Ensure interface compliance at compile time.
var (
	_ CounterStore = (*MemoryStore)(nil)
	_ CounterStore = (*RedisStore)(nil)
)
