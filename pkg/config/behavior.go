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

// BehaviorConfig configures reputation scoring and its profile store.
//
// Example:
//
//	behavior:
//	  backend: sql
//	  sql_database: default
//	  decay_half_life: 168h
type BehaviorConfig struct {
	// Backend is the profile storage backend ("memory", "redis", or "sql").
	Backend StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty"`

	// SQLDatabase references a database from the databases section.
	// Required when backend is "sql".
	SQLDatabase string `yaml:"sql_database,omitempty" json:"sql_database,omitempty"`

	// Redis overrides the store section's Redis connection for profiles.
	// Optional when backend is "redis"; the counter store settings are
	// reused when absent.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`

	// DecayHalfLife is the period over which half of any score deviation
	// from neutral fades. Default: 168h (one week)
	DecayHalfLife time.Duration `yaml:"decay_half_life,omitempty" json:"decay_half_life,omitempty"`

	// ErrorPenalty is the score subtracted per failed request.
	// Default: 2.0
	ErrorPenalty float64 `yaml:"error_penalty,omitempty" json:"error_penalty,omitempty"`

	// RecoveryCredit is the score added per successful request.
	// Default: 0.1
	RecoveryCredit float64 `yaml:"recovery_credit,omitempty" json:"recovery_credit,omitempty"`
}

// SetDefaults sets default values for BehaviorConfig.
func (c *BehaviorConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreBackendMemory
	}
	if c.DecayHalfLife == 0 {
		c.DecayHalfLife = 168 * time.Hour
	}
	if c.ErrorPenalty == 0 {
		c.ErrorPenalty = 2.0
	}
	if c.RecoveryCredit == 0 {
		c.RecoveryCredit = 0.1
	}
	if c.Backend == StoreBackendRedis && c.Redis != nil {
		c.Redis.SetDefaults()
	}
}

// Validate validates the BehaviorConfig.
func (c *BehaviorConfig) Validate() error {
	switch c.Backend {
	case StoreBackendMemory, StoreBackendRedis, StoreBackendSQL, "":
	default:
		return fmt.Errorf("invalid behavior.backend '%s', must be 'memory', 'redis', or 'sql'", c.Backend)
	}

	if c.Backend == StoreBackendSQL && c.SQLDatabase == "" {
		return fmt.Errorf("behavior.backend 'sql' requires 'sql_database' reference")
	}

	if c.DecayHalfLife < 0 {
		return fmt.Errorf("behavior.decay_half_life must be non-negative")
	}

	if c.ErrorPenalty < 0 {
		return fmt.Errorf("behavior.error_penalty must be non-negative")
	}

	if c.RecoveryCredit < 0 {
		return fmt.Errorf("behavior.recovery_credit must be non-negative")
	}

	return nil
}
