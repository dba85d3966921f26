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

// BreakerConfig configures the circuit breaker guarding the counter store.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failures that open the breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`

	// SuccessThreshold is the consecutive half-open successes that close it.
	// Default: 2
	SuccessThreshold int `yaml:"success_threshold,omitempty" json:"success_threshold,omitempty"`

	// Timeout is how long the breaker stays open before a half-open trial.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// BackoffConfig configures the denial backoff hint.
type BackoffConfig struct {
	// Base is the backoff after the first denial; consecutive denials
	// multiply it per the limit's backoff_multiplier. Default: 1s
	Base time.Duration `yaml:"base,omitempty" json:"base,omitempty"`
}

// SetDefaults sets default values for BreakerConfig.
func (c *BreakerConfig) SetDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the BreakerConfig.
func (c *BreakerConfig) Validate() error {
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold must be non-negative")
	}
	if c.SuccessThreshold < 0 {
		return fmt.Errorf("success_threshold must be non-negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// SetDefaults sets default values for BackoffConfig.
func (c *BackoffConfig) SetDefaults() {
	if c.Base == 0 {
		c.Base = time.Second
	}
}

// Validate validates the BackoffConfig.
func (c *BackoffConfig) Validate() error {
	if c.Base < 0 {
		return fmt.Errorf("base must be non-negative")
	}
	return nil
}
