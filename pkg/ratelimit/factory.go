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
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/cerberus/pkg/config"
)

// NewCounterStoreFromConfig creates a CounterStore from configuration.
//
// Example config:
//
//	store:
//	  backend: redis
//	  timeout: 150ms
//	  redis:
//	    addr: localhost:6379
//	    key_prefix: cerberus
func NewCounterStoreFromConfig(cfg *config.StoreConfig) (CounterStore, error) {
	if cfg == nil {
		return NewMemoryStore(), nil
	}

	switch cfg.Backend {
	case config.StoreBackendRedis:
		rc := cfg.Redis
		if rc == nil {
			return nil, fmt.Errorf("store.redis is required when backend is redis")
		}
		client := redis.NewClient(&redis.Options{
			Addr:         rc.Addr,
			Password:     rc.Password,
			DB:           rc.DB,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})
		store, err := NewRedisStore(client, rc.KeyPrefix, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return store, nil
	case config.StoreBackendMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// AlgorithmConfigFromLimit converts a configured limit into the runtime
// form the executor evaluates. Durations become milliseconds here; the
// engine arithmetic stays in integral milliseconds throughout.
func AlgorithmConfigFromLimit(lc *config.LimitConfig) AlgorithmConfig {
	return AlgorithmConfig{
		Algorithm:         ParseAlgorithm(lc.Algorithm),
		Capacity:          lc.Capacity,
		RefillRate:        lc.RefillRate,
		LeakRate:          lc.LeakRate,
		WindowMs:          lc.Window.Milliseconds(),
		BurstCapacity:     lc.BurstCapacity,
		WarmupPeriodMs:    lc.WarmupPeriod.Milliseconds(),
		BackoffMultiplier: lc.BackoffMultiplier,
		MaxBackoffMs:      lc.MaxBackoff.Milliseconds(),
	}
}
