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

// Package behavior tracks per-identity reputation. Every request outcome
// feeds a profile; the behavioral score derived from it drives the policy
// layer's reward and penalty multipliers.
//
// Reputation moves in small steps: errors subtract a penalty, successes add
// a smaller credit, and idle time decays the score back toward neutral with
// a configurable half-life. Decay is applied on write for persistence and
// again on read, so scores stay current without a background sweeper.
package behavior

import (
	"context"
	"time"
)

// errorRateWeight converts the error-rate percentage into score points:
// score = clamp(reputation - 2 x errorRatePercent, 0, 100).
const errorRateWeight = 2.0

// Scorer computes behavioral scores over a profile store.
type Scorer struct {
	store  ProfileStore
	params ScoreParams
}

// NewScorer creates a scorer. Zero params select the defaults.
func NewScorer(store ProfileStore, params ScoreParams) *Scorer {
	params.SetDefaults()
	return &Scorer{
		store:  store,
		params: params,
	}
}

// RecordOutcome feeds one finished request into the identity's profile.
// isError marks server-side failures and policy violations, not rate-limit
// denials.
func (s *Scorer) RecordOutcome(ctx context.Context, identity string, isError bool, now time.Time) (*Profile, error) {
	return s.store.RecordOutcome(ctx, identity, isError, now, s.params)
}

// Score returns the identity's behavioral score in [0, 100] and the profile
// it was derived from. Unknown identities score neutral with a nil profile.
// Idle decay is applied to the reputation at read time without persisting.
func (s *Scorer) Score(ctx context.Context, identity string, now time.Time) (float64, *Profile, error) {
	profile, err := s.store.Get(ctx, identity)
	if err != nil {
		return NeutralScore, nil, err
	}
	if profile == nil {
		return NeutralScore, nil, nil
	}

	reputation := decayToward(profile.ReputationScore, profile.UpdatedAt, now, s.params.DecayHalfLife)
	score := clampScore(reputation - errorRateWeight*profile.ErrorRatePercent())
	return score, profile, nil
}

// Params returns the active scoring policy.
func (s *Scorer) Params() ScoreParams {
	return s.params
}
