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

// Package policy composes per-request limit adjustments on top of a base
// limit configuration.
//
// Layers apply in a fixed order:
//
//  1. Geographic tier: the region resolved from the network address caps
//     capacity at min(base, tier) and may swap the window.
//  2. Behavioral multipliers: the identity's behavior score, suspicious
//     request paths and rapid-fire bursts each contribute a multiplicative
//     factor on capacity and rates.
//  3. Warmup: identities still inside their warmup period may get a ramped
//     capacity.
//
// Every layer is optional; a zero-value Compositor passes the base
// configuration through untouched.
package policy

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

// Request carries the per-request attributes the policy layers read.
type Request struct {
	Identity    ratelimit.Identity
	NetworkAddr string
	Path        string
}

// Adjustment reports what the compositor did to the base configuration.
// Applied lists the layers that changed something, in application order.
type Adjustment struct {
	Region     string
	Tier       string
	Score      float64
	Multiplier float64
	Applied    []string
}

// Compositor layers geographic, behavioral and warmup adjustments onto a
// base limit. All layers are optional and injected at construction.
type Compositor struct {
	geo      *GeoPolicy
	tiers    BehaviorTiers
	scorer   *behavior.Scorer
	scanner  *PatternScanner
	rapid    *RapidFireTracker
	warmup   WarmupPolicy
	logger   *slog.Logger
	warnGate *rate.Limiter
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithGeoPolicy enables the geographic tier layer.
func WithGeoPolicy(g *GeoPolicy) Option {
	return func(c *Compositor) { c.geo = g }
}

// WithBehaviorTiers sets the score thresholds and multipliers.
func WithBehaviorTiers(t BehaviorTiers) Option {
	return func(c *Compositor) { c.tiers = t }
}

// WithScorer enables behavior-score multipliers.
func WithScorer(s *behavior.Scorer) Option {
	return func(c *Compositor) { c.scorer = s }
}

// WithPatternScanner enables suspicious-path penalties.
func WithPatternScanner(s *PatternScanner) Option {
	return func(c *Compositor) { c.scanner = s }
}

// WithRapidFireTracker enables the rapid-fire burst penalty.
func WithRapidFireTracker(t *RapidFireTracker) Option {
	return func(c *Compositor) { c.rapid = t }
}

// WithWarmupPolicy sets the warmup strategy. Defaults to NoopWarmup.
func WithWarmupPolicy(w WarmupPolicy) Option {
	return func(c *Compositor) { c.warmup = w }
}

// WithLogger sets the logger for policy decisions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) { c.logger = l }
}

// NewCompositor creates a compositor from the given options.
func NewCompositor(opts ...Option) *Compositor {
	c := &Compositor{
		warmup:   NoopWarmup{},
		logger:   slog.Default(),
		warnGate: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	c.tiers.SetDefaults()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose applies the policy layers to base and returns the effective
// configuration. Scoring failures degrade to the neutral score; composition
// itself never fails.
func (c *Compositor) Compose(ctx context.Context, req Request, base ratelimit.AlgorithmConfig, now time.Time) (ratelimit.AlgorithmConfig, Adjustment) {
	cfg := base
	adj := Adjustment{Score: behavior.NeutralScore, Multiplier: 1.0}

	// Geographic tier. A request that cannot be attributed to an identity
	// or address gets the most restrictive configured tier.
	if c.geo != nil {
		var tier GeoTier
		if req.Identity.IsZero() || req.NetworkAddr == "" {
			tier = c.geo.MostRestrictive()
			adj.Applied = append(adj.Applied, "geo_unattributed")
		} else {
			tier = c.geo.TierFor(req.NetworkAddr)
			adj.Applied = append(adj.Applied, "geo")
		}
		adj.Region = c.geo.resolver.Resolve(req.NetworkAddr)
		adj.Tier = tier.Name
		if tier.MaxRequests < cfg.Capacity {
			cfg.Capacity = tier.MaxRequests
		}
		if tier.WindowMs > 0 {
			cfg.WindowMs = tier.WindowMs
		}
	}

	// Behavior score. The profile also supplies first-seen for warmup.
	firstSeen := now
	if c.scorer != nil && !req.Identity.IsZero() {
		score, profile, err := c.scorer.Score(ctx, req.Identity.String(), now)
		if err != nil && c.warnGate.Allow() {
			c.logger.Warn("Behavior scoring unavailable, using neutral score",
				"identity", req.Identity.String(),
				"error", err)
		}
		adj.Score = score
		if profile != nil {
			firstSeen = profile.FirstSeenAt
		}
	}

	multiplier := 1.0
	if c.scorer != nil {
		multiplier = c.tiers.MultiplierFor(adj.Score)
		switch {
		case multiplier > 1:
			adj.Applied = append(adj.Applied, "behavior_good")
		case multiplier < 1:
			adj.Applied = append(adj.Applied, "behavior_bad")
		}
	}

	if c.scanner != nil && req.Path != "" {
		if _, matched := c.scanner.Match(req.Path); matched {
			multiplier *= c.scanner.Multiplier()
			adj.Applied = append(adj.Applied, "suspicious_path")
		}
	}

	if c.rapid != nil && !req.Identity.IsZero() {
		if c.rapid.Observe(req.Identity.String(), now) {
			multiplier *= c.rapid.Multiplier()
			adj.Applied = append(adj.Applied, "rapid_fire")
		}
	}

	if multiplier != 1.0 {
		cfg.Capacity = scaleCapacity(cfg.Capacity, multiplier)
		if cfg.RefillRate > 0 {
			cfg.RefillRate *= multiplier
		}
		if cfg.LeakRate > 0 {
			cfg.LeakRate *= multiplier
		}
	}
	adj.Multiplier = multiplier

	// Warmup ramp, driven by the limit's warmup period and the identity's
	// first-seen time.
	if cfg.WarmupPeriodMs > 0 {
		ramped := c.warmup.Adjust(cfg.Capacity, cfg.WarmupPeriodMs, firstSeen, now)
		if ramped != cfg.Capacity {
			cfg.Capacity = ramped
			adj.Applied = append(adj.Applied, "warmup")
		}
	}

	return cfg, adj
}

// scaleCapacity floors at zero, never below.
func scaleCapacity(capacity int64, multiplier float64) int64 {
	scaled := int64(float64(capacity) * multiplier)
	if scaled < 0 {
		return 0
	}
	return scaled
}
