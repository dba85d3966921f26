package policy

import (
	"context"
	"testing"
	"time"

	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/config"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

func TestNewCompositorFromConfig_Nil(t *testing.T) {
	compositor, err := NewCompositorFromConfig(nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCompositorFromConfig failed: %v", err)
	}

	base := baseConfig()
	cfg, adj := compositor.Compose(context.Background(), testRequest(), base, time.Now())
	if cfg != base {
		t.Errorf("expected passthrough for nil config, got %+v", cfg)
	}
	if len(adj.Applied) != 0 {
		t.Errorf("expected no layers applied, got %v", adj.Applied)
	}
}

func TestNewCompositorFromConfig_GeoLayer(t *testing.T) {
	pc := &config.PolicyConfig{
		Geo: &config.GeoConfig{
			Enabled:      config.BoolPtr(true),
			FallbackTier: "restricted",
			Tiers: map[string]*config.GeoTierConfig{
				"US":         {MaxRequests: 100, Window: time.Minute},
				"restricted": {MaxRequests: 10, Window: time.Minute},
			},
			Resolver: &config.ResolverConfig{
				Static: map[string]string{"203.0.113.0/24": "US"},
			},
		},
	}
	pc.SetDefaults()

	compositor, err := NewCompositorFromConfig(pc, nil, nil)
	if err != nil {
		t.Fatalf("NewCompositorFromConfig failed: %v", err)
	}

	now := time.Now()
	cfg, adj := compositor.Compose(context.Background(), testRequest(), baseConfig(), now)
	if cfg.Capacity != 100 {
		t.Errorf("expected tier capacity 100, got %d", cfg.Capacity)
	}
	if adj.Region != "US" {
		t.Errorf("expected region US, got %q", adj.Region)
	}

	// Unresolvable address lands in the fallback tier.
	req := testRequest()
	req.NetworkAddr = "198.51.100.7:1234"
	cfg, adj = compositor.Compose(context.Background(), req, baseConfig(), now)
	if cfg.Capacity != 10 {
		t.Errorf("expected fallback capacity 10, got %d", cfg.Capacity)
	}
	if adj.Tier != "restricted" {
		t.Errorf("expected fallback tier, got %q", adj.Tier)
	}
}

func TestNewCompositorFromConfig_GeoInvalidResolver(t *testing.T) {
	pc := &config.PolicyConfig{
		Geo: &config.GeoConfig{
			Enabled:      config.BoolPtr(true),
			FallbackTier: "open",
			Tiers: map[string]*config.GeoTierConfig{
				"open": {MaxRequests: 100, Window: time.Minute},
			},
			Resolver: &config.ResolverConfig{
				Static: map[string]string{"not-an-address": "open"},
			},
		},
	}

	if _, err := NewCompositorFromConfig(pc, nil, nil); err == nil {
		t.Fatal("expected error for invalid resolver entry")
	}
}

func TestNewCompositorFromConfig_BehavioralLayer(t *testing.T) {
	scorer := behavior.NewScorer(behavior.NewMemoryProfileStore(), behavior.ScoreParams{})
	pc := &config.PolicyConfig{
		Behavioral: &config.BehavioralConfig{
			GoodThreshold:  80,
			BadThreshold:   30,
			GoodMultiplier: 1.5,
			BadMultiplier:  0.25,
		},
	}
	pc.SetDefaults()

	compositor, err := NewCompositorFromConfig(pc, scorer, nil)
	if err != nil {
		t.Fatalf("NewCompositorFromConfig failed: %v", err)
	}

	now := time.Now()

	// Sink the identity's score with repeated errors, then watch the bad
	// multiplier bite.
	id := testRequest().Identity
	for i := 0; i < 40; i++ {
		if _, err := scorer.RecordOutcome(context.Background(), id.String(), true, now); err != nil {
			t.Fatalf("record outcome failed: %v", err)
		}
	}

	cfg, adj := compositor.Compose(context.Background(), testRequest(), baseConfig(), now)
	if cfg.Capacity != 250 {
		t.Errorf("expected bad multiplier to shrink capacity to 250, got %d", cfg.Capacity)
	}
	if adj.Multiplier != 0.25 {
		t.Errorf("expected multiplier 0.25, got %v", adj.Multiplier)
	}

	// Suspicious paths divide capacity even without a scorer hit.
	req := testRequest()
	req.Identity = ratelimit.Identity{Kind: ratelimit.IdentityUser, Value: "bob"}
	req.Path = "/files/../../etc/passwd"
	cfg, _ = compositor.Compose(context.Background(), req, baseConfig(), now)
	if cfg.Capacity >= 1000 {
		t.Errorf("expected pattern penalty to shrink capacity, got %d", cfg.Capacity)
	}
}

func TestNewCompositorFromConfig_WarmupLayer(t *testing.T) {
	pc := &config.PolicyConfig{
		Warmup: &config.WarmupConfig{Strategy: config.WarmupStrategyLinear, StartFraction: 0.1},
	}
	pc.SetDefaults()

	scorer := behavior.NewScorer(behavior.NewMemoryProfileStore(), behavior.ScoreParams{})
	compositor, err := NewCompositorFromConfig(pc, scorer, nil)
	if err != nil {
		t.Fatalf("NewCompositorFromConfig failed: %v", err)
	}

	now := time.Now()
	id := testRequest().Identity
	if _, err := scorer.RecordOutcome(context.Background(), id.String(), false, now); err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}

	base := baseConfig()
	base.WarmupPeriodMs = 60_000

	cfg, adj := compositor.Compose(context.Background(), testRequest(), base, now)
	if cfg.Capacity >= base.Capacity {
		t.Errorf("expected warmup to reduce capacity for a new identity, got %d", cfg.Capacity)
	}
	if len(adj.Applied) == 0 {
		t.Error("expected warmup layer recorded in adjustment")
	}
}
