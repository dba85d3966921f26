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

package policy

import (
	"fmt"
	"log/slog"

	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/config"
)

// NewCompositorFromConfig assembles the policy stack from configuration.
// A nil scorer leaves the behavioral multiplier out even when the config
// section is present; the remaining layers are unaffected.
func NewCompositorFromConfig(cfg *config.PolicyConfig, scorer *behavior.Scorer, logger *slog.Logger) (*Compositor, error) {
	var opts []Option
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if cfg == nil {
		return NewCompositor(opts...), nil
	}

	if gc := cfg.Geo; gc.IsEnabled() {
		static := map[string]string{}
		if gc.Resolver != nil {
			static = gc.Resolver.Static
		}
		resolver, err := NewStaticResolver(static)
		if err != nil {
			return nil, fmt.Errorf("geo resolver: %w", err)
		}

		tiers := make(map[string]GeoTier, len(gc.Tiers))
		for name, tc := range gc.Tiers {
			if tc == nil {
				continue
			}
			tiers[name] = GeoTier{
				Name:        name,
				MaxRequests: tc.MaxRequests,
				WindowMs:    tc.Window.Milliseconds(),
			}
		}

		geo, err := NewGeoPolicy(resolver, tiers, gc.FallbackTier)
		if err != nil {
			return nil, fmt.Errorf("geo policy: %w", err)
		}
		opts = append(opts, WithGeoPolicy(geo))
	}

	if bc := cfg.Behavioral; bc != nil {
		if scorer != nil {
			opts = append(opts,
				WithScorer(scorer),
				WithBehaviorTiers(BehaviorTiers{
					GoodThreshold:  bc.GoodThreshold,
					BadThreshold:   bc.BadThreshold,
					GoodMultiplier: bc.GoodMultiplier,
					BadMultiplier:  bc.BadMultiplier,
				}),
			)
		}

		scanner, err := NewPatternScanner(bc.SuspiciousPatterns, bc.PatternPenalty, logger)
		if err != nil {
			return nil, fmt.Errorf("pattern scanner: %w", err)
		}
		opts = append(opts, WithPatternScanner(scanner))

		if rf := bc.RapidFire; rf != nil && rf.Threshold > 0 {
			opts = append(opts, WithRapidFireTracker(
				NewRapidFireTracker(rf.Threshold, rf.Window.Milliseconds(), rf.Multiplier),
			))
		}
	}

	if wc := cfg.Warmup; wc != nil && wc.Strategy == config.WarmupStrategyLinear {
		opts = append(opts, WithWarmupPolicy(LinearWarmup{StartFraction: wc.StartFraction}))
	}

	return NewCompositor(opts...), nil
}
