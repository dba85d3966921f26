package ratelimit

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T) (*Executor, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	executor, err := NewExecutor(store)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	return executor, store
}

func testKey(endpoint string) Key {
	return NewKey(Identity{Kind: IdentityIP, Value: "198.51.100.7"}, AlgorithmTokenBucket, endpoint)
}

func TestExecutor_TokenBucketConservation(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	cfg := AlgorithmConfig{
		Algorithm:  AlgorithmTokenBucket,
		Capacity:   10,
		RefillRate: 1,
		WindowMs:   10_000,
	}
	key := NewKey(Identity{Kind: IdentityUser, Value: "u1"}, cfg.Algorithm, "/api")
	start := time.UnixMilli(1_000_000)

	// Capacity 10: exactly ten immediate admits.
	for i := 1; i <= 10; i++ {
		decision, err := executor.Evaluate(ctx, key, cfg, start)
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Errorf("expected request %d to be allowed", i)
		}
		if decision.Remaining != int64(10-i) {
			t.Errorf("expected remaining %d after request %d, got %d", 10-i, i, decision.Remaining)
		}
	}

	// 11th is denied with a one-token wait.
	decision, err := executor.Evaluate(ctx, key, cfg, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected 11th request to be denied")
	}
	if decision.RetryAfterMs != 1000 {
		t.Errorf("expected retry after 1000ms, got %d", decision.RetryAfterMs)
	}

	// After 3 seconds at 1 token/s: exactly three more admits.
	later := start.Add(3 * time.Second)
	for i := 1; i <= 3; i++ {
		decision, err := executor.Evaluate(ctx, key, cfg, later)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("expected refill admit %d to be allowed", i)
		}
	}
	decision, err = executor.Evaluate(ctx, key, cfg, later)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected 4th post-refill request to be denied")
	}
}

func TestExecutor_SlidingWindowExactness(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	cfg := AlgorithmConfig{
		Algorithm: AlgorithmSlidingWindow,
		Capacity:  5,
		WindowMs:  1000,
	}
	key := NewKey(Identity{Kind: IdentityIP, Value: "203.0.113.9"}, cfg.Algorithm, "/api")
	start := time.UnixMilli(50_000)

	for i := 1; i <= 5; i++ {
		decision, err := executor.Evaluate(ctx, key, cfg, start)
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Errorf("expected request %d to be allowed", i)
		}
	}

	// Window full: wait is oldest + window - now.
	decision, err := executor.Evaluate(ctx, key, cfg, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected 6th request to be denied")
	}
	if decision.RetryAfterMs != 1000 {
		t.Errorf("expected retry after 1000ms, got %d", decision.RetryAfterMs)
	}

	// 1001ms later every entry has left the window.
	decision, err = executor.Evaluate(ctx, key, cfg, start.Add(1001*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected request after window to be allowed")
	}
}

func TestExecutor_LeakyBucketDrain(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	cfg := AlgorithmConfig{
		Algorithm: AlgorithmLeakyBucket,
		Capacity:  3,
		LeakRate:  1,
		WindowMs:  3000,
	}
	key := NewKey(Identity{Kind: IdentityAPIKey, Value: "k-9"}, cfg.Algorithm, "/api")
	start := time.UnixMilli(2_000_000)

	for i := 1; i <= 3; i++ {
		decision, err := executor.Evaluate(ctx, key, cfg, start)
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Errorf("expected request %d to be allowed", i)
		}
	}

	decision, err := executor.Evaluate(ctx, key, cfg, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected 4th request to be denied")
	}
	if decision.RetryAfterMs != 1000 {
		t.Errorf("expected retry after 1000ms, got %d", decision.RetryAfterMs)
	}

	// Two seconds of draining at 1/s frees exactly two slots.
	later := start.Add(2 * time.Second)
	for i := 1; i <= 2; i++ {
		decision, err := executor.Evaluate(ctx, key, cfg, later)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("expected post-drain admit %d to be allowed", i)
		}
	}
	decision, err = executor.Evaluate(ctx, key, cfg, later)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected 3rd post-drain request to be denied")
	}
}

func TestExecutor_FixedWindowBoundary(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	cfg := AlgorithmConfig{
		Algorithm: AlgorithmFixedWindow,
		Capacity:  2,
		WindowMs:  1000,
	}
	key := NewKey(Identity{Kind: IdentityIP, Value: "192.0.2.4"}, cfg.Algorithm, "/api")

	// Fill the [0, 1000) window.
	for _, ms := range []int64{0, 500} {
		decision, err := executor.Evaluate(ctx, key, cfg, time.UnixMilli(ms))
		if err != nil {
			t.Fatalf("unexpected error at t=%d: %v", ms, err)
		}
		if !decision.Allowed {
			t.Errorf("expected request at t=%d to be allowed", ms)
		}
	}

	decision, err := executor.Evaluate(ctx, key, cfg, time.UnixMilli(999))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected request at t=999 to be denied")
	}
	if decision.RetryAfterMs != 1 {
		t.Errorf("expected retry after 1ms, got %d", decision.RetryAfterMs)
	}

	// t=1000 starts a fresh window.
	decision, err = executor.Evaluate(ctx, key, cfg, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected request at t=1000 to be allowed")
	}
	if decision.ResetAt.UnixMilli() != 2000 {
		t.Errorf("expected reset at t=2000, got %d", decision.ResetAt.UnixMilli())
	}
}

func TestExecutor_KeyIsolation(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	cfg := AlgorithmConfig{
		Algorithm: AlgorithmFixedWindow,
		Capacity:  1,
		WindowMs:  60_000,
	}
	id := Identity{Kind: IdentityUser, Value: "u7"}
	now := time.UnixMilli(500_000)

	// Exhaust /api/a; /api/b keeps its own counter.
	keyA := NewKey(id, cfg.Algorithm, "/api/a")
	keyB := NewKey(id, cfg.Algorithm, "/api/b")

	decision, err := executor.Evaluate(ctx, keyA, cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected first /api/a request to be allowed")
	}

	decision, err = executor.Evaluate(ctx, keyA, cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Errorf("expected second /api/a request to be denied")
	}

	decision, err = executor.Evaluate(ctx, keyB, cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected /api/b to be unaffected by /api/a")
	}
}

func TestExecutor_UnknownAlgorithm(t *testing.T) {
	executor, _ := newTestExecutor(t)

	cfg := AlgorithmConfig{
		Algorithm: Algorithm("quantum_window"),
		Capacity:  10,
		WindowMs:  1000,
	}
	_, err := executor.Evaluate(context.Background(), testKey("/api"), cfg, time.Now())
	if err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
	if !IsConfigError(err) {
		t.Errorf("expected unknown algorithm to classify as config error")
	}
}

func TestExecutor_InvalidConfig(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  AlgorithmConfig
	}{
		{
			name: "negative capacity",
			cfg:  AlgorithmConfig{Algorithm: AlgorithmTokenBucket, Capacity: -1, WindowMs: 1000},
		},
		{
			name: "zero window",
			cfg:  AlgorithmConfig{Algorithm: AlgorithmFixedWindow, Capacity: 5, WindowMs: 0},
		},
		{
			name: "negative refill rate",
			cfg:  AlgorithmConfig{Algorithm: AlgorithmTokenBucket, Capacity: 5, WindowMs: 1000, RefillRate: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Evaluate(ctx, testKey("/api"), tt.cfg, time.Now())
			if err == nil {
				t.Fatal("expected config error")
			}
			if !IsConfigError(err) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestExecutor_ZeroCapacityDeniesAll(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	// Policy layers can multiply capacity down to zero. That is not a
	// config error; it denies every attempt.
	for _, algo := range []Algorithm{
		AlgorithmSlidingWindow, AlgorithmTokenBucket, AlgorithmLeakyBucket, AlgorithmFixedWindow,
	} {
		cfg := AlgorithmConfig{Algorithm: algo, Capacity: 0, WindowMs: 1000, RefillRate: 1, LeakRate: 1}
		decision, err := executor.Evaluate(ctx, testKey("/api/"+string(algo)), cfg, now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", algo, err)
		}
		if decision.Allowed {
			t.Errorf("%s: expected denial at zero capacity", algo)
		}
	}
}

func TestAlgorithmConfig_WithDerivedRates(t *testing.T) {
	tests := []struct {
		name       string
		cfg        AlgorithmConfig
		wantRefill float64
		wantLeak   float64
	}{
		{
			name:       "derive from capacity over window",
			cfg:        AlgorithmConfig{Capacity: 100, WindowMs: 60_000},
			wantRefill: 100.0 / 60.0,
			wantLeak:   100.0 / 60.0,
		},
		{
			name:       "explicit rates win",
			cfg:        AlgorithmConfig{Capacity: 100, WindowMs: 60_000, RefillRate: 5, LeakRate: 2},
			wantRefill: 5,
			wantLeak:   2,
		},
		{
			name:       "sub-second window",
			cfg:        AlgorithmConfig{Capacity: 10, WindowMs: 500},
			wantRefill: 20,
			wantLeak:   20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.WithDerivedRates()
			if math.Abs(got.RefillRate-tt.wantRefill) > 1e-9 {
				t.Errorf("expected refill rate %v, got %v", tt.wantRefill, got.RefillRate)
			}
			if math.Abs(got.LeakRate-tt.wantLeak) > 1e-9 {
				t.Errorf("expected leak rate %v, got %v", tt.wantLeak, got.LeakRate)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	key := NewKey(Identity{Kind: IdentityAPIKey, Value: "abc"}, AlgorithmSlidingWindow, "/v1/search")
	want := "api_key:abc:sliding_window:/v1/search"
	if key.String() != want {
		t.Errorf("expected %q, got %q", want, key.String())
	}

	// Same fields, same counter.
	again := NewKey(Identity{Kind: IdentityAPIKey, Value: "abc"}, AlgorithmSlidingWindow, "/v1/search")
	if key != again {
		t.Errorf("expected identical keys to be equal")
	}
}
