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

// Warmup strategies.
const (
	WarmupStrategyNone   = "none"
	WarmupStrategyLinear = "linear"
)

// PolicyConfig configures the policy layers applied on top of base limits.
type PolicyConfig struct {
	// Geo configures geographic tier overrides.
	Geo *GeoConfig `yaml:"geo,omitempty" json:"geo,omitempty"`

	// Behavioral configures reputation multipliers and pattern penalties.
	Behavioral *BehavioralConfig `yaml:"behavioral,omitempty" json:"behavioral,omitempty"`

	// Warmup configures capacity ramping for newly seen identities.
	Warmup *WarmupConfig `yaml:"warmup,omitempty" json:"warmup,omitempty"`
}

// GeoConfig configures geographic tier overrides.
//
// Example:
//
//	geo:
//	  enabled: true
//	  fallback_tier: restricted
//	  tiers:
//	    US: {max_requests: 1000, window: 60s}
//	    restricted: {max_requests: 50, window: 60s}
//	  resolver:
//	    static:
//	      "203.0.113.0/24": US
type GeoConfig struct {
	// Enabled controls whether geographic overrides are applied.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// FallbackTier names the tier applied when the resolver returns no
	// region. Empty means unresolved addresses keep the base limit.
	FallbackTier string `yaml:"fallback_tier,omitempty" json:"fallback_tier,omitempty"`

	// Tiers maps region names to their limits.
	Tiers map[string]*GeoTierConfig `yaml:"tiers,omitempty" json:"tiers,omitempty"`

	// Resolver configures how network addresses map to regions.
	Resolver *ResolverConfig `yaml:"resolver,omitempty" json:"resolver,omitempty"`
}

// GeoTierConfig is the limit a region is held to.
type GeoTierConfig struct {
	// MaxRequests is the tier quota per window.
	MaxRequests int64 `yaml:"max_requests" json:"max_requests"`

	// Window is the tier measurement window.
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`
}

// ResolverConfig configures region resolution.
type ResolverConfig struct {
	// Static maps addresses or CIDR prefixes to region names.
	Static map[string]string `yaml:"static,omitempty" json:"static,omitempty"`
}

// BehavioralConfig configures reputation-driven multipliers.
type BehavioralConfig struct {
	// GoodThreshold is the score at or above which the good multiplier
	// applies. Default: 80
	GoodThreshold float64 `yaml:"good_threshold,omitempty" json:"good_threshold,omitempty"`

	// BadThreshold is the score at or below which the bad multiplier
	// applies. Default: 30
	BadThreshold float64 `yaml:"bad_threshold,omitempty" json:"bad_threshold,omitempty"`

	// GoodMultiplier scales capacity for well-behaved identities.
	// Default: 1.5
	GoodMultiplier float64 `yaml:"good_multiplier,omitempty" json:"good_multiplier,omitempty"`

	// BadMultiplier scales capacity for poorly behaved identities.
	// Default: 0.25
	BadMultiplier float64 `yaml:"bad_multiplier,omitempty" json:"bad_multiplier,omitempty"`

	// PatternPenalty divides capacity when the request path matches a
	// suspicious pattern. Default: 4
	PatternPenalty float64 `yaml:"pattern_penalty,omitempty" json:"pattern_penalty,omitempty"`

	// SuspiciousPatterns overrides the compiled-in pattern list.
	// Empty means use the defaults.
	SuspiciousPatterns []string `yaml:"suspicious_patterns,omitempty" json:"suspicious_patterns,omitempty"`

	// RapidFire configures burst-rate throttling.
	RapidFire *RapidFireConfig `yaml:"rapid_fire,omitempty" json:"rapid_fire,omitempty"`
}

// RapidFireConfig throttles identities sending bursts well above their limit.
type RapidFireConfig struct {
	// Threshold is the request count within Window that marks a burst.
	// Default: 50
	Threshold int64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Window is the burst detection window. Default: 10s
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`

	// Multiplier scales capacity while a burst is active. Default: 0.1
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// WarmupConfig configures capacity ramping for newly seen identities.
type WarmupConfig struct {
	// Strategy selects the ramp: "none" or "linear". Default: none
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty"`

	// StartFraction is the fraction of capacity granted at first sight
	// when strategy is "linear". Default: 0.1
	StartFraction float64 `yaml:"start_fraction,omitempty" json:"start_fraction,omitempty"`
}

// IsEnabled returns true if geographic overrides are enabled.
func (c *GeoConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for PolicyConfig.
func (c *PolicyConfig) SetDefaults() {
	if c.Geo != nil {
		c.Geo.SetDefaults()
	}
	if c.Behavioral == nil {
		c.Behavioral = &BehavioralConfig{}
	}
	c.Behavioral.SetDefaults()
	if c.Warmup == nil {
		c.Warmup = &WarmupConfig{}
	}
	c.Warmup.SetDefaults()
}

// Validate validates the PolicyConfig.
func (c *PolicyConfig) Validate() error {
	if c.Geo != nil {
		if err := c.Geo.Validate(); err != nil {
			return fmt.Errorf("geo: %w", err)
		}
	}
	if c.Behavioral != nil {
		if err := c.Behavioral.Validate(); err != nil {
			return fmt.Errorf("behavioral: %w", err)
		}
	}
	if c.Warmup != nil {
		if err := c.Warmup.Validate(); err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
	}
	return nil
}

// SetDefaults sets default values for GeoConfig.
func (c *GeoConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(false)
	}
	for name := range c.Tiers {
		if tier := c.Tiers[name]; tier != nil && tier.Window == 0 {
			tier.Window = time.Minute
		}
	}
}

// Validate validates the GeoConfig.
func (c *GeoConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("tiers is required when geo is enabled")
	}

	for name, tier := range c.Tiers {
		if tier == nil {
			continue
		}
		if tier.MaxRequests <= 0 {
			return fmt.Errorf("tiers['%s'].max_requests must be positive", name)
		}
		if tier.Window < 0 {
			return fmt.Errorf("tiers['%s'].window must be non-negative", name)
		}
	}

	if c.FallbackTier != "" {
		if _, ok := c.Tiers[c.FallbackTier]; !ok {
			return fmt.Errorf("fallback_tier '%s' not found in tiers", c.FallbackTier)
		}
	}

	if c.Resolver != nil {
		for _, region := range c.Resolver.Static {
			if _, ok := c.Tiers[region]; !ok {
				return fmt.Errorf("resolver maps to tier '%s' which is not defined", region)
			}
		}
	}

	return nil
}

// SetDefaults sets default values for BehavioralConfig.
func (c *BehavioralConfig) SetDefaults() {
	if c.GoodThreshold == 0 {
		c.GoodThreshold = 80
	}
	if c.BadThreshold == 0 {
		c.BadThreshold = 30
	}
	if c.GoodMultiplier == 0 {
		c.GoodMultiplier = 1.5
	}
	if c.BadMultiplier == 0 {
		c.BadMultiplier = 0.25
	}
	if c.PatternPenalty == 0 {
		c.PatternPenalty = 4
	}
	if c.RapidFire == nil {
		c.RapidFire = &RapidFireConfig{}
	}
	c.RapidFire.SetDefaults()
}

// Validate validates the BehavioralConfig.
func (c *BehavioralConfig) Validate() error {
	if c.GoodThreshold < c.BadThreshold {
		return fmt.Errorf("good_threshold (%v) must be at least bad_threshold (%v)", c.GoodThreshold, c.BadThreshold)
	}
	if c.GoodMultiplier < 0 {
		return fmt.Errorf("good_multiplier must be non-negative")
	}
	if c.BadMultiplier < 0 {
		return fmt.Errorf("bad_multiplier must be non-negative")
	}
	if c.PatternPenalty < 1 {
		return fmt.Errorf("pattern_penalty must be at least 1")
	}
	if c.RapidFire != nil {
		if err := c.RapidFire.Validate(); err != nil {
			return fmt.Errorf("rapid_fire: %w", err)
		}
	}
	return nil
}

// SetDefaults sets default values for RapidFireConfig.
func (c *RapidFireConfig) SetDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 50
	}
	if c.Window == 0 {
		c.Window = 10 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 0.1
	}
}

// Validate validates the RapidFireConfig.
func (c *RapidFireConfig) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative")
	}
	if c.Window < 0 {
		return fmt.Errorf("window must be non-negative")
	}
	if c.Multiplier < 0 || c.Multiplier > 1 {
		return fmt.Errorf("multiplier must be between 0 and 1")
	}
	return nil
}

// SetDefaults sets default values for WarmupConfig.
func (c *WarmupConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = WarmupStrategyNone
	}
	if c.StartFraction == 0 {
		c.StartFraction = 0.1
	}
}

// Validate validates the WarmupConfig.
func (c *WarmupConfig) Validate() error {
	if c.Strategy != WarmupStrategyNone && c.Strategy != WarmupStrategyLinear {
		return fmt.Errorf("invalid strategy '%s', must be 'none' or 'linear'", c.Strategy)
	}
	if c.StartFraction < 0 || c.StartFraction > 1 {
		return fmt.Errorf("start_fraction must be between 0 and 1")
	}
	return nil
}
