package behavior

import (
	"context"
	"math"
	"time"
)

// NeutralScore is the reputation every identity starts with and decays back
// toward while idle.
const NeutralScore = 100.0

// Profile accumulates per-identity request history. Profiles are never
// hard-deleted; an idle identity's reputation decays back toward neutral
// instead.
type Profile struct {
	Identity        string    `json:"identity"`
	TotalRequests   int64     `json:"total_requests"`
	ErrorCount      int64     `json:"error_count"`
	ReputationScore float64   `json:"reputation_score"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ErrorRatePercent returns the identity's error rate in percent.
func (p *Profile) ErrorRatePercent() float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.ErrorCount) / float64(p.TotalRequests) * 100
}

// ScoreParams carries the scoring policy into the store's atomic update.
type ScoreParams struct {
	// ErrorPenalty is subtracted from reputation on every error outcome.
	ErrorPenalty float64

	// RecoveryCredit is added on every success outcome.
	RecoveryCredit float64

	// DecayHalfLife is the idle time after which the distance from the
	// neutral score halves. Zero disables decay.
	DecayHalfLife time.Duration
}

// SetDefaults fills zero values.
func (p *ScoreParams) SetDefaults() {
	if p.ErrorPenalty <= 0 {
		p.ErrorPenalty = 2.0
	}
	if p.RecoveryCredit <= 0 {
		p.RecoveryCredit = 0.1
	}
	if p.DecayHalfLife <= 0 {
		p.DecayHalfLife = 7 * 24 * time.Hour
	}
}

// ProfileStore is the persistence layer for behavior profiles. The profile
// is owned by the store: RecordOutcome applies the whole update atomically
// and callers receive copies, never live records.
type ProfileStore interface {
	// Get returns the stored profile, or nil when the identity has no
	// history yet. The returned profile is raw; read-time decay is the
	// scorer's business.
	Get(ctx context.Context, identity string) (*Profile, error)

	// RecordOutcome applies one request outcome: decays the stored
	// reputation for the idle gap, increments the counters, applies the
	// penalty or credit, clamps to [0, NeutralScore], and persists.
	// Returns the updated profile.
	RecordOutcome(ctx context.Context, identity string, isError bool, now time.Time, params ScoreParams) (*Profile, error)

	// Close closes the store and releases resources.
	Close() error
}

// decayToward moves reputation toward neutral for the idle gap between
// updatedAt and now. Exponential with the configured half-life.
func decayToward(reputation float64, updatedAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || !now.After(updatedAt) {
		return reputation
	}
	elapsed := now.Sub(updatedAt)
	factor := math.Pow(0.5, float64(elapsed)/float64(halfLife))
	return NeutralScore - (NeutralScore-reputation)*factor
}

// clampScore bounds a reputation or behavioral score to [0, NeutralScore].
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > NeutralScore {
		return NeutralScore
	}
	return v
}

// Ensure interface compliance at compile time.
var (
	_ ProfileStore = (*MemoryProfileStore)(nil)
	_ ProfileStore = (*RedisProfileStore)(nil)
	_ ProfileStore = (*SQLProfileStore)(nil)
)
