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
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Each script is one atomic read-modify-write: Redis executes scripts
// serially per server, so concurrent evaluations of the same key cannot
// interleave. Times are unix milliseconds supplied by the caller; fractional
// bucket levels travel as strings to survive the integer reply conversion.

// slidingWindowScript drops expired entries, admits below capacity, and
// reports the oldest surviving entry for reset math.
// KEYS[1] zset key; ARGV: capacity, window_ms, now_ms, member.
// Returns {allowed, count, oldest_ms, wait_ms}.
const slidingWindowScript = `
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])

local allowed = 0
local wait = 0
if count < capacity then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  allowed = 1
  count = count + 1
end
redis.call('PEXPIRE', KEYS[1], window)

local oldest_ms = now
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then
  oldest_ms = tonumber(oldest[2])
end
if allowed == 0 then
  wait = oldest_ms + window - now
end
return {allowed, count, oldest_ms, wait}
`

// tokenBucketScript refills for the elapsed time, capped at the ceiling,
// and spends one token on admission. New buckets start full. State persists
// on both outcomes so denials still advance the refill clock.
// KEYS[1] hash key; ARGV: ceiling, refill_per_sec, now_ms, ttl_ms.
// Returns {allowed, tokens, wait_ms}.
const tokenBucketScript = `
local ceiling = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if not tokens then
  tokens = ceiling
  last = now
end

local elapsed = (now - last) / 1000
if elapsed < 0 then
  elapsed = 0
end
tokens = tokens + elapsed * rate
if tokens > ceiling then
  tokens = ceiling
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, tostring(tokens), wait}
`

// leakyBucketScript drains for the elapsed time, floored at zero, and adds
// one unit of volume on admission. New buckets start empty.
// KEYS[1] hash key; ARGV: capacity, leak_per_sec, now_ms, ttl_ms.
// Returns {allowed, volume, wait_ms}.
const leakyBucketScript = `
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'volume', 'ts')
local volume = tonumber(state[1])
local last = tonumber(state[2])
if not volume then
  volume = 0
  last = now
end

local elapsed = (now - last) / 1000
if elapsed < 0 then
  elapsed = 0
end
volume = volume - elapsed * rate
if volume < 0 then
  volume = 0
end

local allowed = 0
local wait = 0
if volume < capacity then
  volume = volume + 1
  allowed = 1
else
  wait = math.ceil(1000 / rate)
end

redis.call('HSET', KEYS[1], 'volume', volume, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, tostring(volume), wait}
`

// fixedWindowScript increments the counter for one window bucket. The key
// carries the window start, so a new window is simply a new key.
// KEYS[1] counter key; ARGV: capacity, ttl_ms.
// Returns {allowed, count}.
const fixedWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
local allowed = 0
if count <= tonumber(ARGV[1]) then
  allowed = 1
end
return {allowed, count}
`

var (
	slidingWindow = redis.NewScript(slidingWindowScript)
	tokenBucket   = redis.NewScript(tokenBucketScript)
	leakyBucket   = redis.NewScript(leakyBucketScript)
	fixedWindow   = redis.NewScript(fixedWindowScript)
)

// RedisStore is a Redis-backed implementation of CounterStore for
// multi-instance deployments. All four algorithms run as Lua scripts, so
// every evaluation is a single atomic step on the shared backend; once a
// script starts it runs to completion regardless of client-side
// cancellation.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

// NewRedisStore creates a Redis-backed counter store and verifies
// connectivity. Runtime outages after construction surface as
// ErrStoreUnavailable; construction failure means the store is
// misconfigured.
func NewRedisStore(client *redis.Client, keyPrefix string, timeout time.Duration) (*RedisStore, error) {
	if keyPrefix == "" {
		keyPrefix = "cerberus"
	}
	if timeout <= 0 {
		timeout = 150 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   timeout,
	}, nil
}

// EvaluateSlidingWindow admits while fewer than capacity timestamps live in
// the trailing window.
func (s *RedisStore) EvaluateSlidingWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	values, err := s.run(ctx, slidingWindow, s.counterKey(key), cfg.Capacity, cfg.WindowMs, nowMs, member)
	if err != nil {
		return StoreResult{}, err
	}
	if len(values) != 4 {
		return StoreResult{}, NewStoreError("redis", fmt.Errorf("sliding window: unexpected reply %v", values))
	}

	allowed := convertInt64(values[0]) == 1
	count := convertInt64(values[1])
	oldest := convertInt64(values[2])

	res := StoreResult{
		Allowed:   allowed,
		Current:   count,
		Remaining: cfg.Capacity - count,
		ResetAtMs: oldest + cfg.WindowMs,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !allowed {
		res.WaitMs = convertInt64(values[3])
	}
	return res, nil
}

// EvaluateTokenBucket refills tokens for the elapsed time and spends one on
// admission.
func (s *RedisStore) EvaluateTokenBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ceiling := cfg.BucketCeiling()
	nowMs := now.UnixMilli()
	ttl := recordTTLMs(cfg.WindowMs, float64(ceiling), cfg.RefillRate)

	values, err := s.run(ctx, tokenBucket, s.counterKey(key), ceiling, formatRate(cfg.RefillRate), nowMs, ttl)
	if err != nil {
		return StoreResult{}, err
	}
	if len(values) != 3 {
		return StoreResult{}, NewStoreError("redis", fmt.Errorf("token bucket: unexpected reply %v", values))
	}

	allowed := convertInt64(values[0]) == 1
	tokens := convertFloat(values[1])

	res := StoreResult{
		Allowed:   allowed,
		Current:   ceiling - int64(math.Floor(tokens)),
		Remaining: int64(math.Floor(tokens)),
	}
	if allowed {
		res.ResetAtMs = nowMs + ceilDivMs(float64(ceiling)-tokens, cfg.RefillRate)
	} else {
		res.Remaining = 0
		res.WaitMs = convertInt64(values[2])
		res.ResetAtMs = nowMs + res.WaitMs
	}
	return res, nil
}

// EvaluateLeakyBucket drains volume for the elapsed time and adds one unit
// on admission.
func (s *RedisStore) EvaluateLeakyBucket(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	nowMs := now.UnixMilli()
	ttl := recordTTLMs(cfg.WindowMs, float64(cfg.Capacity), cfg.LeakRate)

	values, err := s.run(ctx, leakyBucket, s.counterKey(key), cfg.Capacity, formatRate(cfg.LeakRate), nowMs, ttl)
	if err != nil {
		return StoreResult{}, err
	}
	if len(values) != 3 {
		return StoreResult{}, NewStoreError("redis", fmt.Errorf("leaky bucket: unexpected reply %v", values))
	}

	allowed := convertInt64(values[0]) == 1
	volume := convertFloat(values[1])

	res := StoreResult{
		Allowed:   allowed,
		Current:   int64(math.Ceil(volume)),
		Remaining: cfg.Capacity - int64(math.Ceil(volume)),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if allowed {
		res.ResetAtMs = nowMs + ceilDivMs(volume, cfg.LeakRate)
	} else {
		res.WaitMs = convertInt64(values[2])
		res.ResetAtMs = nowMs + res.WaitMs
	}
	return res, nil
}

// EvaluateFixedWindow increments the counter for the window bucket
// containing now.
func (s *RedisStore) EvaluateFixedWindow(ctx context.Context, key string, cfg AlgorithmConfig, now time.Time) (StoreResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	nowMs := now.UnixMilli()
	windowStart := (nowMs / cfg.WindowMs) * cfg.WindowMs
	bucketKey := fmt.Sprintf("%s:%d", s.counterKey(key), windowStart)

	values, err := s.run(ctx, fixedWindow, bucketKey, cfg.Capacity, cfg.WindowMs)
	if err != nil {
		return StoreResult{}, err
	}
	if len(values) != 2 {
		return StoreResult{}, NewStoreError("redis", fmt.Errorf("fixed window: unexpected reply %v", values))
	}

	allowed := convertInt64(values[0]) == 1
	count := convertInt64(values[1])

	res := StoreResult{
		Allowed:   allowed,
		Current:   count,
		Remaining: cfg.Capacity - count,
		ResetAtMs: windowStart + cfg.WindowMs,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !allowed {
		res.WaitMs = windowStart + cfg.WindowMs - nowMs
	}
	return res, nil
}

// IncrViolationStreak bumps the consecutive-denial counter for a key.
func (s *RedisStore) IncrViolationStreak(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var incr *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.streakKey(key))
		pipe.PExpire(ctx, s.streakKey(key), ttl)
		return nil
	})
	if err != nil {
		return 0, NewStoreError("redis", err)
	}
	return incr.Val(), nil
}

// ResetViolationStreak clears the consecutive-denial counter.
func (s *RedisStore) ResetViolationStreak(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.streakKey(key)).Err(); err != nil {
		return NewStoreError("redis", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// run executes a script and normalizes the reply into a value slice.
func (s *RedisStore) run(ctx context.Context, script *redis.Script, key string, args ...interface{}) ([]interface{}, error) {
	result, err := script.Run(ctx, s.client, []string{key}, args...).Result()
	if err != nil {
		return nil, NewStoreError("redis", err)
	}
	values, ok := result.([]interface{})
	if !ok {
		return nil, NewStoreError("redis", fmt.Errorf("unexpected reply type %T", result))
	}
	return values, nil
}

// withTimeout bounds a store call when the caller supplied no deadline.
func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) counterKey(key string) string {
	return s.keyPrefix + ":rl:" + key
}

func (s *RedisStore) streakKey(key string) string {
	return s.keyPrefix + ":streak:" + key
}

// recordTTLMs returns a record lifetime that outlives both the window and a
// full bucket recovery.
func recordTTLMs(windowMs int64, capacity, perSecond float64) int64 {
	ttl := windowMs
	if perSecond > 0 {
		if refill := ceilDivMs(capacity, perSecond); refill > ttl {
			ttl = refill
		}
	}
	return ttl
}

// formatRate renders a rate for ARGV without float noise.
func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}

func convertInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return int64(f)
	default:
		return 0
	}
}

func convertFloat(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
