package ratelimit

import (
	"fmt"
	"time"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
)

// Valid reports whether the algorithm tag is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmSlidingWindow, AlgorithmTokenBucket, AlgorithmLeakyBucket, AlgorithmFixedWindow:
		return true
	default:
		return false
	}
}

// ParseAlgorithm converts config string to Algorithm.
func ParseAlgorithm(s string) Algorithm {
	return Algorithm(s)
}

// IdentityKind classifies how a caller is identified.
type IdentityKind string

const (
	IdentityIP        IdentityKind = "ip"
	IdentityUser      IdentityKind = "user"
	IdentityAPIKey    IdentityKind = "api_key"
	IdentityAnonymous IdentityKind = "anonymous"
)

// Identity is the subject of an admission decision.
type Identity struct {
	Kind  IdentityKind `json:"kind"`
	Value string       `json:"value"`
}

// IsZero reports whether the identity carries no usable information.
func (id Identity) IsZero() bool {
	return id.Value == "" && id.Kind != IdentityAnonymous
}

// String renders the identity as kind:value.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%s", id.Kind, id.Value)
}

// Key uniquely identifies one counter in the store. Two keys are the same
// counter iff identity kind, identity value, algorithm, and endpoint all
// match. Values are immutable once built.
type Key struct {
	IdentityKind  IdentityKind
	IdentityValue string
	Algorithm     Algorithm
	Endpoint      string
}

// NewKey builds the counter key for an identity/algorithm/endpoint triple.
func NewKey(id Identity, algorithm Algorithm, endpoint string) Key {
	return Key{
		IdentityKind:  id.Kind,
		IdentityValue: id.Value,
		Algorithm:     algorithm,
		Endpoint:      endpoint,
	}
}

// String renders the canonical store key.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.IdentityKind, k.IdentityValue, k.Algorithm, k.Endpoint)
}

// AlgorithmConfig is the effective configuration an evaluation runs with.
// Only the fields relevant to the selected algorithm are meaningful;
// irrelevant fields are ignored, not rejected.
type AlgorithmConfig struct {
	Algorithm Algorithm `json:"algorithm"`

	// Capacity is the maximum burst size or window quota.
	Capacity int64 `json:"capacity"`

	// RefillRate is tokens added per second (token bucket). Zero means
	// derive from capacity and window.
	RefillRate float64 `json:"refill_rate,omitempty"`

	// LeakRate is requests drained per second (leaky bucket). Zero means
	// derive from capacity and window.
	LeakRate float64 `json:"leak_rate,omitempty"`

	// WindowMs is the window length in milliseconds.
	WindowMs int64 `json:"window_ms"`

	// BurstCapacity optionally overrides Capacity as the bucket ceiling.
	BurstCapacity int64 `json:"burst_capacity,omitempty"`

	// WarmupPeriodMs ramps capacity for identities seen more recently
	// than this period. Zero disables warmup.
	WarmupPeriodMs int64 `json:"warmup_period_ms,omitempty"`

	// BackoffMultiplier grows the backoff hint on consecutive denials.
	// Zero disables backoff.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty"`

	// MaxBackoffMs caps the backoff hint.
	MaxBackoffMs int64 `json:"max_backoff_ms,omitempty"`
}

// Window returns the window length as a duration.
func (c AlgorithmConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// BucketCeiling returns the bucket size: BurstCapacity when set, Capacity
// otherwise.
func (c AlgorithmConfig) BucketCeiling() int64 {
	if c.BurstCapacity > 0 {
		return c.BurstCapacity
	}
	return c.Capacity
}

// WithDerivedRates fills RefillRate and LeakRate from capacity over window
// when they are unset. capacity/(window in seconds), per the documented
// defaulting rule.
func (c AlgorithmConfig) WithDerivedRates() AlgorithmConfig {
	if c.WindowMs <= 0 {
		return c
	}
	perSecond := float64(c.Capacity) / (float64(c.WindowMs) / 1000.0)
	if c.RefillRate <= 0 {
		c.RefillRate = perSecond
	}
	if c.LeakRate <= 0 {
		c.LeakRate = perSecond
	}
	return c
}

// Decision is the outcome of one admission evaluation. Decisions are
// ephemeral; nothing in the engine retains them.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Capacity  int64 `json:"capacity"`
	Current   int64 `json:"current"`
	Remaining int64 `json:"remaining"`

	// ResetAt is when the limit window resets or the bucket recovers.
	ResetAt time.Time `json:"reset_at"`

	// RetryAfterMs is how long a denied caller should wait. Zero when
	// allowed.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`

	// BackoffMs is the escalating penalty hint for repeat offenders.
	// Zero unless backoff is configured and the request was denied.
	BackoffMs int64 `json:"backoff_ms,omitempty"`
}

// RetryAfter returns the retry hint as a duration. The escalated backoff
// wins when it exceeds the algorithm's own wait.
func (d *Decision) RetryAfter() time.Duration {
	ms := d.RetryAfterMs
	if d.BackoffMs > ms {
		ms = d.BackoffMs
	}
	return time.Duration(ms) * time.Millisecond
}

// StoreResult is the raw outcome of one atomic store evaluation, before the
// executor normalizes it into a Decision.
type StoreResult struct {
	// Allowed reports whether the store admitted the request.
	Allowed bool

	// Current is the usage the store observed after applying the request.
	Current int64

	// Remaining is the capacity left after applying the request.
	Remaining int64

	// ResetAtMs is the unix-millisecond time the counter frees up.
	ResetAtMs int64

	// WaitMs is the denial wait hint. Zero when allowed.
	WaitMs int64
}
