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

// Package admission orchestrates a single admission attempt: policy
// composition, breaker-guarded store dispatch, backoff bookkeeping, and
// metrics. One call to Evaluate makes at most one counter store mutation.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/breaker"
	"github.com/kadirpekel/cerberus/pkg/observability"
	"github.com/kadirpekel/cerberus/pkg/policy"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

// Fallback reasons reported to metrics.
const (
	FallbackBreakerOpen = "breaker_open"
	FallbackStoreError  = "store_error"
)

// Clock supplies the time admission decisions reason about. Injected so
// tests can drive algorithm windows deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time { return time.Now() }

// Request describes one admission attempt.
type Request struct {
	// Identity is the caller the attempt is charged to.
	Identity ratelimit.Identity

	// Endpoint is the logical operation being limited. Counters for the
	// same identity are independent across endpoints.
	Endpoint string

	// NetworkAddr is the caller's network address, consulted by the
	// geographic policy layer. Optional.
	NetworkAddr string

	// Path is the raw request path, consulted by the suspicious pattern
	// scanner. Optional.
	Path string
}

// Controller evaluates admission attempts end to end.
//
// Everything is injected: multiple isolated controllers can coexist in one
// process, each with its own store, breaker, and policy stack.
type Controller struct {
	executor   *ratelimit.Executor
	compositor *policy.Compositor
	brk        *breaker.Breaker
	backoff    *ratelimit.BackoffCalculator
	scorer     *behavior.Scorer
	metrics    observability.Metrics
	clock      Clock
	logger     *slog.Logger

	// Configuration errors surface to every caller but log at most once
	// a minute.
	cfgLogGate *rate.Limiter
}

// Option configures a Controller.
type Option func(*Controller)

// WithCompositor sets the policy compositor applied before dispatch.
func WithCompositor(c *policy.Compositor) Option {
	return func(ctrl *Controller) { ctrl.compositor = c }
}

// WithBreaker sets the circuit breaker guarding the counter store.
func WithBreaker(b *breaker.Breaker) Option {
	return func(ctrl *Controller) { ctrl.brk = b }
}

// WithBackoff sets the backoff calculator for denial streaks.
func WithBackoff(b *ratelimit.BackoffCalculator) Option {
	return func(ctrl *Controller) { ctrl.backoff = b }
}

// WithScorer sets the behavior scorer fed by RecordOutcome.
func WithScorer(s *behavior.Scorer) Option {
	return func(ctrl *Controller) { ctrl.scorer = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.Metrics) Option {
	return func(ctrl *Controller) {
		if m != nil {
			ctrl.metrics = m
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(ctrl *Controller) {
		if c != nil {
			ctrl.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) {
		if l != nil {
			ctrl.logger = l
		}
	}
}

// NewController creates a controller around an executor. All other
// collaborators are optional.
func NewController(executor *ratelimit.Executor, opts ...Option) (*Controller, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	c := &Controller{
		executor:   executor,
		metrics:    observability.NoopMetrics{},
		clock:      RealClock{},
		logger:     slog.Default(),
		cfgLogGate: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Evaluate runs one admission attempt and returns the final decision.
//
// Availability wins over precision: an open breaker or a store failure
// yields a synthetic full-capacity allow, not an error. The only errors
// returned are configuration errors (unknown algorithm, malformed limit),
// which callers must surface and never retry.
func (c *Controller) Evaluate(ctx context.Context, req Request, base ratelimit.AlgorithmConfig) (*ratelimit.Decision, error) {
	now := c.clock.Now()
	start := time.Now()

	key := ratelimit.NewKey(req.Identity, base.Algorithm, req.Endpoint)

	if c.brk != nil && !c.brk.Allow(now) {
		c.metrics.RecordFallback(ctx, FallbackBreakerOpen)
		return fallbackDecision(base, now), nil
	}

	effective := base
	if c.compositor != nil {
		var adj policy.Adjustment
		effective, adj = c.compositor.Compose(ctx, policy.Request{
			Identity:    req.Identity,
			NetworkAddr: req.NetworkAddr,
			Path:        req.Path,
		}, base, now)
		if len(adj.Applied) > 0 {
			c.metrics.RecordPolicyLayers(ctx, adj.Applied)
		}
	}

	decision, err := c.executor.Evaluate(ctx, key, effective, now)
	if err != nil {
		if ratelimit.IsConfigError(err) || errors.Is(err, ratelimit.ErrUnknownAlgorithm) {
			if c.cfgLogGate.Allow() {
				c.logger.Error("Rejected admission configuration",
					"endpoint", req.Endpoint,
					"algorithm", string(base.Algorithm),
					"error", err)
			}
			return nil, err
		}

		if c.brk != nil {
			c.brk.OnFailure(now)
		}
		c.metrics.RecordStoreError(ctx)
		c.metrics.RecordFallback(ctx, FallbackStoreError)
		c.logger.Warn("Counter store unavailable, failing open",
			"key", key.String(),
			"error", err)
		return fallbackDecision(effective, now), nil
	}

	if c.brk != nil {
		c.brk.OnSuccess(now)
	}

	if c.backoff != nil {
		if decision.Allowed {
			if err := c.backoff.OnAllowed(ctx, key); err != nil {
				c.logger.Debug("Failed to reset violation streak",
					"key", key.String(), "error", err)
			}
		} else {
			backoffMs, err := c.backoff.OnDenied(ctx, key, effective)
			if err != nil {
				c.logger.Debug("Failed to bump violation streak",
					"key", key.String(), "error", err)
			} else {
				decision.BackoffMs = backoffMs
			}
		}
	}

	c.metrics.RecordDecision(ctx, string(effective.Algorithm), decision.Allowed, time.Since(start))
	return decision, nil
}

// RecordOutcome feeds a served request's outcome to the behavior scorer.
// No-op when no scorer is configured or the identity is unusable.
func (c *Controller) RecordOutcome(ctx context.Context, identity ratelimit.Identity, isError bool) error {
	if c.scorer == nil || identity.IsZero() {
		return nil
	}
	if _, err := c.scorer.RecordOutcome(ctx, identity.String(), isError, c.clock.Now()); err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", identity, err)
	}
	return nil
}

// BreakerState reports the store breaker's state, StateClosed when no
// breaker is configured.
func (c *Controller) BreakerState() breaker.State {
	if c.brk == nil {
		return breaker.StateClosed
	}
	return c.brk.State()
}

// fallbackDecision is the synthetic allow issued when the store cannot be
// consulted. Full capacity is reported so callers do not throttle
// themselves against a limit nobody is enforcing.
func fallbackDecision(cfg ratelimit.AlgorithmConfig, now time.Time) *ratelimit.Decision {
	return &ratelimit.Decision{
		Allowed:   true,
		Capacity:  cfg.Capacity,
		Remaining: cfg.Capacity,
		ResetAt:   now.Add(time.Duration(cfg.WindowMs) * time.Millisecond),
	}
}
