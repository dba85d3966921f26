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

// Package breaker implements the circuit breaker guarding the counter
// store. State is strictly per process: each instance protects its own
// store connection, and instances do not coordinate.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the breaker state.
type State string

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = "closed"

	// StateOpen blocks calls until the timeout elapses.
	StateOpen State = "open"

	// StateHalfOpen passes trial calls and counts consecutive successes.
	StateHalfOpen State = "half_open"
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the breaker. A half-open failure reopens it and resets
	// the success count.
	SuccessThreshold int

	// Timeout is how long the breaker stays open before admitting trial
	// calls.
	Timeout time.Duration
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithStateChange registers a hook invoked after every state transition,
// outside the breaker lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// Breaker is a consecutive-failure circuit breaker. The caller supplies the
// clock on every method, so transitions are deterministic under test.
type Breaker struct {
	cfg           Config
	onStateChange func(from, to State)

	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	mu            sync.Mutex
}

// New creates a breaker in the closed state.
func New(cfg Config, opts ...Option) *Breaker {
	cfg.SetDefaults()
	b := &Breaker{
		cfg:   cfg,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed at time now. An open breaker
// whose timeout has elapsed moves to half-open and admits the call as a
// trial.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if now.Sub(b.lastFailureAt) >= b.cfg.Timeout {
			from := b.transition(StateHalfOpen)
			b.successCount = 0
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return true
		}
		b.mu.Unlock()
		return false
	default:
		b.mu.Unlock()
		return true
	}
}

// OnSuccess records a successful store call.
func (b *Breaker) OnSuccess(now time.Time) {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			from := b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.mu.Unlock()
			b.notify(from, StateClosed)
			return
		}
	}
	b.mu.Unlock()
}

// OnFailure records a failed store call.
func (b *Breaker) OnFailure(now time.Time) {
	b.mu.Lock()
	b.lastFailureAt = now

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			from := b.transition(StateOpen)
			b.mu.Unlock()
			b.notify(from, StateOpen)
			return
		}
	case StateHalfOpen:
		b.successCount = 0
		from := b.transition(StateOpen)
		b.mu.Unlock()
		b.notify(from, StateOpen)
		return
	}
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition swaps the state and returns the previous one. Caller holds the
// lock.
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	return from
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	slog.Warn("Circuit breaker state change", "from", string(from), "to", string(to))
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
