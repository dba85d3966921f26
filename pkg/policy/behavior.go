package policy

// BehaviorTiers maps a behavior score onto a capacity multiplier. Scores at
// or above GoodThreshold earn GoodMultiplier, scores at or below
// BadThreshold pay BadMultiplier, everything between passes through at 1.0.
type BehaviorTiers struct {
	GoodThreshold  float64
	BadThreshold   float64
	GoodMultiplier float64
	BadMultiplier  float64
}

// SetDefaults applies default values
func (t *BehaviorTiers) SetDefaults() {
	if t.GoodThreshold <= 0 {
		t.GoodThreshold = 80
	}
	if t.BadThreshold <= 0 {
		t.BadThreshold = 30
	}
	if t.GoodMultiplier <= 0 {
		t.GoodMultiplier = 1.5
	}
	if t.BadMultiplier <= 0 {
		t.BadMultiplier = 0.25
	}
}

// MultiplierFor returns the capacity multiplier for a score.
func (t BehaviorTiers) MultiplierFor(score float64) float64 {
	switch {
	case score <= t.BadThreshold:
		return t.BadMultiplier
	case score >= t.GoodThreshold:
		return t.GoodMultiplier
	default:
		return 1.0
	}
}
