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

// Package ratelimit implements the counting core of the Cerberus admission
// engine: four rate limiting algorithms over one atomic counter store.
//
// Features:
//   - Four algorithms behind one tag: sliding window, token bucket,
//     leaky bucket, fixed window
//   - Atomic counter store contract with in-memory and Redis backends
//   - Exactly one store round trip per admission attempt
//   - Escalating backoff hints driven by persisted violation streaks
//   - Caller-supplied clock; no hidden time reads in the decision path
//
// # Basic Usage
//
//	store := ratelimit.NewMemoryStore()
//	executor, err := ratelimit.NewExecutor(store)
//
//	cfg := ratelimit.AlgorithmConfig{
//	    Algorithm: ratelimit.AlgorithmTokenBucket,
//	    Capacity:  100,
//	    WindowMs:  60000,
//	}
//	key := ratelimit.NewKey(identity, cfg.Algorithm, "/api/search")
//	decision, err := executor.Evaluate(ctx, key, cfg, time.Now())
//	if !decision.Allowed {
//	    // Reject with decision.RetryAfterMs
//	}
//
// # Algorithms
//
//   - sliding_window: exact trailing-window log, one timestamp per request
//   - token_bucket: refill at refill_rate per second, spend one per request
//   - leaky_bucket: drain at leak_rate per second, add one per request
//   - fixed_window: one counter per aligned window bucket
//
// Refill and leak rates default to capacity spread evenly over the window
// when not set explicitly.
//
// # Stores
//
//   - MemoryStore: mutex-serialized, single-instance deployments and tests
//   - RedisStore: Lua-scripted, shared across instances, per-call timeouts
//
// Both backends implement identical arithmetic; a decision depends only on
// the counter state and the caller's clock, not on the backend.
package ratelimit
