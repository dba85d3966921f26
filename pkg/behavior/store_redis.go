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

package behavior

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordOutcomeScript applies one request outcome in a single atomic step:
// decay for the idle gap, counter increments, penalty or credit, clamp.
// Profiles carry no TTL; idle identities decay instead of expiring.
// KEYS[1] profile hash; ARGV: now_ms, is_error, penalty, credit,
// half_life_ms. Returns {total, errors, reputation, first_ms}.
const recordOutcomeScript = `
local now = tonumber(ARGV[1])
local is_error = tonumber(ARGV[2])
local penalty = tonumber(ARGV[3])
local credit = tonumber(ARGV[4])
local half_life = tonumber(ARGV[5])

local p = redis.call('HMGET', KEYS[1], 'total', 'errors', 'rep', 'first', 'updated')
local total = tonumber(p[1]) or 0
local errors = tonumber(p[2]) or 0
local rep = tonumber(p[3])
local first = tonumber(p[4])
local updated = tonumber(p[5])
if not rep then
  rep = 100
  first = now
  updated = now
end

if half_life > 0 and now > updated then
  local factor = 0.5 ^ ((now - updated) / half_life)
  rep = 100 - (100 - rep) * factor
end

total = total + 1
if is_error == 1 then
  errors = errors + 1
  rep = rep - penalty
else
  rep = rep + credit
end
if rep < 0 then
  rep = 0
end
if rep > 100 then
  rep = 100
end

redis.call('HSET', KEYS[1], 'total', total, 'errors', errors, 'rep', rep, 'first', first, 'updated', now)
return {total, errors, tostring(rep), first}
`

var recordOutcome = redis.NewScript(recordOutcomeScript)

// RedisProfileStore is a Redis-backed implementation of ProfileStore for
// multi-instance deployments: every instance feeds and reads the same
// reputation.
type RedisProfileStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisProfileStore creates a Redis-backed profile store.
func NewRedisProfileStore(client *redis.Client, keyPrefix string) (*RedisProfileStore, error) {
	if keyPrefix == "" {
		keyPrefix = "cerberus"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return &RedisProfileStore{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// Get returns the stored profile, or nil when absent.
func (s *RedisProfileStore) Get(ctx context.Context, identity string) (*Profile, error) {
	values, err := s.client.HMGet(ctx, s.profileKey(identity), "total", "errors", "rep", "first", "updated").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if values[2] == nil {
		return nil, nil
	}

	return &Profile{
		Identity:        identity,
		TotalRequests:   parseField(values[0]),
		ErrorCount:      parseField(values[1]),
		ReputationScore: parseFloatField(values[2]),
		FirstSeenAt:     time.UnixMilli(parseField(values[3])),
		UpdatedAt:       time.UnixMilli(parseField(values[4])),
	}, nil
}

// RecordOutcome applies one request outcome via the Lua script.
func (s *RedisProfileStore) RecordOutcome(ctx context.Context, identity string, isError bool, now time.Time, params ScoreParams) (*Profile, error) {
	errFlag := 0
	if isError {
		errFlag = 1
	}

	result, err := recordOutcome.Run(ctx, s.client, []string{s.profileKey(identity)},
		now.UnixMilli(),
		errFlag,
		strconv.FormatFloat(params.ErrorPenalty, 'f', -1, 64),
		strconv.FormatFloat(params.RecoveryCredit, 'f', -1, 64),
		params.DecayHalfLife.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("record outcome: unexpected reply %v", result)
	}

	return &Profile{
		Identity:        identity,
		TotalRequests:   parseField(values[0]),
		ErrorCount:      parseField(values[1]),
		ReputationScore: parseFloatField(values[2]),
		FirstSeenAt:     time.UnixMilli(parseField(values[3])),
		UpdatedAt:       now,
	}, nil
}

// Close closes the underlying client.
func (s *RedisProfileStore) Close() error {
	return s.client.Close()
}

func (s *RedisProfileStore) profileKey(identity string) string {
	return s.keyPrefix + ":profile:" + identity
}

func parseField(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func parseFloatField(val interface{}) float64 {
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
