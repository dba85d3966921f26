// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
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
	"time"
)

// DefaultBaseBackoffMs is the starting penalty when a key is first denied.
const DefaultBaseBackoffMs = 1000

// DefaultMaxBackoffMs caps the penalty when a limit configures no cap of
// its own.
const DefaultMaxBackoffMs = 60_000

// BackoffCalculator produces the escalating penalty hint for repeat
// offenders: min(base × multiplier^streak, cap), where streak is the number
// of consecutive prior denials for the key. The streak is persisted in the
// counter store next to the counters it describes and resets on the next
// admitted request.
type BackoffCalculator struct {
	store  CounterStore
	baseMs int64
}

// NewBackoffCalculator creates a calculator. baseMs <= 0 selects
// DefaultBaseBackoffMs.
func NewBackoffCalculator(store CounterStore, baseMs int64) *BackoffCalculator {
	if baseMs <= 0 {
		baseMs = DefaultBaseBackoffMs
	}
	return &BackoffCalculator{
		store:  store,
		baseMs: baseMs,
	}
}

// OnDenied advances the violation streak for key and returns the penalty for
// this denial. The first denial in a streak pays the base penalty. A zero
// multiplier means the limit opted out of backoff; the streak is not
// tracked.
func (b *BackoffCalculator) OnDenied(ctx context.Context, key Key, cfg AlgorithmConfig) (int64, error) {
	if cfg.BackoffMultiplier <= 0 {
		return 0, nil
	}

	maxMs := cfg.MaxBackoffMs
	if maxMs <= 0 {
		maxMs = DefaultMaxBackoffMs
	}

	streak, err := b.store.IncrViolationStreak(ctx, key.String(), streakTTL(cfg.WindowMs, maxMs))
	if err != nil {
		return 0, err
	}

	// The streak counts prior denials, so the value before this increment.
	prior := float64(streak - 1)
	backoff := float64(b.baseMs) * math.Pow(cfg.BackoffMultiplier, prior)
	if backoff > float64(maxMs) || math.IsInf(backoff, 1) {
		return maxMs, nil
	}
	return int64(backoff), nil
}

// OnAllowed resets the violation streak for key. Called on every admitted
// request so one success ends the escalation.
func (b *BackoffCalculator) OnAllowed(ctx context.Context, key Key) error {
	return b.store.ResetViolationStreak(ctx, key.String())
}

// streakTTL keeps the streak alive across the punishment horizon and no
// longer.
func streakTTL(windowMs, maxBackoffMs int64) time.Duration {
	ttlMs := windowMs
	if maxBackoffMs > ttlMs {
		ttlMs = maxBackoffMs
	}
	return 2 * time.Duration(ttlMs) * time.Millisecond
}
