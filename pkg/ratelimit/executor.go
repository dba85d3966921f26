package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Executor runs one admission evaluation against the counter store. It
// validates the effective configuration, fills derived rates, dispatches on
// the algorithm tag, and normalizes the store outcome into a Decision.
//
// The executor holds no per-key state; everything contended lives in the
// store.
type Executor struct {
	store CounterStore
}

// NewExecutor creates an executor backed by the given store.
func NewExecutor(store CounterStore) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Executor{store: store}, nil
}

// Evaluate runs a single admission attempt for key under cfg at time now.
// Exactly one store call is made per invocation. A ConfigError means the
// configuration is malformed and the call must not be retried; an
// ErrStoreUnavailable means the store could not serve the attempt.
//
// Capacity zero is legal here and denies every attempt: policy layers may
// multiply an abusive identity's capacity down to nothing.
func (e *Executor) Evaluate(ctx context.Context, key Key, cfg AlgorithmConfig, now time.Time) (*Decision, error) {
	if err := validateRuntimeConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.WithDerivedRates()

	var (
		res StoreResult
		err error
	)
	switch cfg.Algorithm {
	case AlgorithmSlidingWindow:
		res, err = e.store.EvaluateSlidingWindow(ctx, key.String(), cfg, now)
	case AlgorithmTokenBucket:
		res, err = e.store.EvaluateTokenBucket(ctx, key.String(), cfg, now)
	case AlgorithmLeakyBucket:
		res, err = e.store.EvaluateLeakyBucket(ctx, key.String(), cfg, now)
	case AlgorithmFixedWindow:
		res, err = e.store.EvaluateFixedWindow(ctx, key.String(), cfg, now)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Allowed:   res.Allowed,
		Capacity:  cfg.Capacity,
		Current:   res.Current,
		Remaining: res.Remaining,
		ResetAt:   time.UnixMilli(res.ResetAtMs),
	}
	if !res.Allowed {
		decision.RetryAfterMs = res.WaitMs
	}
	return decision, nil
}

// Streaks exposes the store's violation streak operations for the backoff
// calculator. The executor and calculator share one store so streaks stay
// next to the counters they describe.
func (e *Executor) Streaks() CounterStore {
	return e.store
}

// ValidateAlgorithmConfig rejects configurations the executor cannot run.
// Used at load time for configured limits, where zero capacity is a
// misconfiguration. Fields irrelevant to the selected algorithm are not
// validated.
func ValidateAlgorithmConfig(cfg AlgorithmConfig) error {
	if cfg.Capacity <= 0 {
		return NewConfigError("capacity", "must be positive")
	}
	return validateRuntimeConfig(cfg)
}

// validateRuntimeConfig is the per-evaluation check. Policy layers may hand
// the executor a zeroed capacity, so only negative capacity is rejected.
func validateRuntimeConfig(cfg AlgorithmConfig) error {
	if !cfg.Algorithm.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
	if cfg.Capacity < 0 {
		return NewConfigError("capacity", "must not be negative")
	}
	if cfg.WindowMs <= 0 {
		return NewConfigError("window_ms", "must be positive")
	}
	if cfg.RefillRate < 0 {
		return NewConfigError("refill_rate", "must not be negative")
	}
	if cfg.LeakRate < 0 {
		return NewConfigError("leak_rate", "must not be negative")
	}
	if cfg.BurstCapacity < 0 {
		return NewConfigError("burst_capacity", "must not be negative")
	}
	if cfg.BackoffMultiplier < 0 {
		return NewConfigError("backoff_multiplier", "must not be negative")
	}
	if cfg.MaxBackoffMs < 0 {
		return NewConfigError("max_backoff_ms", "must not be negative")
	}
	return nil
}
