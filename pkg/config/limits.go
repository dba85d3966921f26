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

// LimitsConfig defines the default limit and per-endpoint overrides.
//
// Example:
//
//	limits:
//	  default:
//	    algorithm: token_bucket
//	    capacity: 100
//	    window: 60s
//	  endpoints:
//	    "/api/search":
//	      algorithm: sliding_window
//	      capacity: 30
//	      window: 10s
type LimitsConfig struct {
	// Default applies to every endpoint without an override.
	Default *LimitConfig `yaml:"default,omitempty" json:"default,omitempty"`

	// Endpoints maps endpoint names to their limit overrides.
	Endpoints map[string]*LimitConfig `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
}

// LimitConfig defines a single rate limit.
type LimitConfig struct {
	// Algorithm selects the admission algorithm:
	// "sliding_window", "token_bucket", "leaky_bucket", or "fixed_window".
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`

	// Capacity is the maximum burst size or window quota.
	Capacity int64 `yaml:"capacity" json:"capacity"`

	// Window is the measurement window.
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`

	// RefillRate is tokens added per second (token bucket).
	// Zero derives capacity/window.
	RefillRate float64 `yaml:"refill_rate,omitempty" json:"refill_rate,omitempty"`

	// LeakRate is requests drained per second (leaky bucket).
	// Zero derives capacity/window.
	LeakRate float64 `yaml:"leak_rate,omitempty" json:"leak_rate,omitempty"`

	// BurstCapacity optionally overrides Capacity as the bucket ceiling.
	BurstCapacity int64 `yaml:"burst_capacity,omitempty" json:"burst_capacity,omitempty"`

	// WarmupPeriod ramps capacity for identities first seen within this
	// period. Zero disables warmup for this limit.
	WarmupPeriod time.Duration `yaml:"warmup_period,omitempty" json:"warmup_period,omitempty"`

	// BackoffMultiplier grows the backoff hint on consecutive denials.
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`

	// MaxBackoff caps the backoff hint.
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty" json:"max_backoff,omitempty"`
}

// For returns the limit for an endpoint, falling back to the default.
func (c *LimitsConfig) For(endpoint string) *LimitConfig {
	if lc, ok := c.Endpoints[endpoint]; ok && lc != nil {
		return lc
	}
	return c.Default
}

// SetDefaults sets default values for LimitsConfig.
func (c *LimitsConfig) SetDefaults() {
	if c.Default == nil {
		c.Default = &LimitConfig{}
	}
	c.Default.SetDefaults()

	for name := range c.Endpoints {
		if c.Endpoints[name] != nil {
			c.Endpoints[name].SetDefaults()
		}
	}
}

// Validate validates the LimitsConfig.
func (c *LimitsConfig) Validate() error {
	if c.Default != nil {
		if err := c.Default.Validate(); err != nil {
			return fmt.Errorf("limits.default: %w", err)
		}
	}
	for name, lc := range c.Endpoints {
		if lc == nil {
			continue
		}
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("limits.endpoints['%s']: %w", name, err)
		}
	}
	return nil
}

// SetDefaults sets default values for LimitConfig.
func (c *LimitConfig) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "token_bucket"
	}
	if c.Capacity == 0 {
		c.Capacity = 100
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = time.Minute
	}
}

// Validate validates a single limit.
func (c *LimitConfig) Validate() error {
	validAlgorithms := map[string]bool{
		"sliding_window": true,
		"token_bucket":   true,
		"leaky_bucket":   true,
		"fixed_window":   true,
	}
	if c.Algorithm != "" && !validAlgorithms[c.Algorithm] {
		return fmt.Errorf("invalid algorithm '%s', must be 'sliding_window', 'token_bucket', 'leaky_bucket', or 'fixed_window'", c.Algorithm)
	}

	if c.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}

	if c.Window < 0 {
		return fmt.Errorf("window must be non-negative")
	}

	if c.RefillRate < 0 {
		return fmt.Errorf("refill_rate must be non-negative")
	}

	if c.LeakRate < 0 {
		return fmt.Errorf("leak_rate must be non-negative")
	}

	if c.BurstCapacity < 0 {
		return fmt.Errorf("burst_capacity must be non-negative")
	}

	if c.WarmupPeriod < 0 {
		return fmt.Errorf("warmup_period must be non-negative")
	}

	if c.BackoffMultiplier < 0 {
		return fmt.Errorf("backoff_multiplier must be non-negative")
	}

	if c.MaxBackoff < 0 {
		return fmt.Errorf("max_backoff must be non-negative")
	}

	return nil
}
