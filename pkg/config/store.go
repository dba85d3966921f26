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

package config

import (
	"fmt"
	"time"
)

// StoreBackend identifies a storage backend type.
type StoreBackend string

const (
	// StoreBackendMemory uses in-process storage (default).
	StoreBackendMemory StoreBackend = "memory"

	// StoreBackendRedis uses Redis for shared, multi-instance state.
	StoreBackendRedis StoreBackend = "redis"

	// StoreBackendSQL uses a SQL database (behavior profiles only).
	StoreBackendSQL StoreBackend = "sql"
)

// StoreConfig configures the counter store all algorithms share.
//
// Example:
//
//	store:
//	  backend: redis
//	  timeout: 150ms
//	  redis:
//	    addr: localhost:6379
//	    key_prefix: cerberus
type StoreConfig struct {
	// Backend is the storage backend ("memory" or "redis").
	Backend StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Timeout bounds every store operation. A store call that exceeds it
	// counts as a store failure and the request fails open.
	// Default: 150ms
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Redis holds connection settings. Required when backend is "redis".
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	// Default: localhost:6379
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Password for AUTH. Empty means no auth.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the logical database number.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// KeyPrefix namespaces all keys written by this engine.
	// Default: cerberus
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// SetDefaults sets default values for StoreConfig.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreBackendMemory
	}
	if c.Timeout == 0 {
		c.Timeout = 150 * time.Millisecond
	}
	if c.Backend == StoreBackendRedis {
		if c.Redis == nil {
			c.Redis = &RedisConfig{}
		}
		c.Redis.SetDefaults()
	}
}

// Validate validates the StoreConfig.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StoreBackendMemory, StoreBackendRedis, "":
	case StoreBackendSQL:
		return fmt.Errorf("invalid store.backend 'sql', counters require 'memory' or 'redis'")
	default:
		return fmt.Errorf("invalid store.backend '%s', must be 'memory' or 'redis'", c.Backend)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("store.timeout must be non-negative")
	}

	if c.Backend == StoreBackendRedis {
		if c.Redis == nil || c.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required when backend is 'redis'")
		}
	}

	return nil
}

// SetDefaults sets default values for RedisConfig.
func (c *RedisConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "cerberus"
	}
}
