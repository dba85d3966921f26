package breaker

import (
	"testing"
	"time"
)

func TestBreaker_Lifecycle(t *testing.T) {
	b := New(Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})
	now := time.UnixMilli(1_000_000)

	if b.State() != StateClosed {
		t.Fatalf("expected initial state closed, got %s", b.State())
	}

	// Five consecutive failures open the breaker.
	for i := 0; i < 4; i++ {
		b.OnFailure(now)
		if b.State() != StateClosed {
			t.Fatalf("expected breaker to stay closed after %d failures", i+1)
		}
	}
	b.OnFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to open after 5 failures, got %s", b.State())
	}

	// While open, calls are blocked.
	if b.Allow(now.Add(10 * time.Second)) {
		t.Errorf("expected open breaker to block calls")
	}

	// After the timeout one trial call passes and the breaker is half-open.
	trial := now.Add(31 * time.Second)
	if !b.Allow(trial) {
		t.Fatalf("expected trial call after timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open state, got %s", b.State())
	}

	// Two consecutive successes close it.
	b.OnSuccess(trial)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected breaker to stay half-open after one success")
	}
	b.OnSuccess(trial)
	if b.State() != StateClosed {
		t.Fatalf("expected breaker to close after two successes, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          time.Second,
	})
	now := time.UnixMilli(5_000_000)

	b.OnFailure(now)
	b.OnFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	trial := now.Add(2 * time.Second)
	if !b.Allow(trial) {
		t.Fatalf("expected trial call")
	}

	// One success, then a failure: back to open with the success count gone.
	b.OnSuccess(trial)
	b.OnFailure(trial)
	if b.State() != StateOpen {
		t.Fatalf("expected failure in half-open to reopen, got %s", b.State())
	}

	// The next trial needs the full success threshold again.
	trial = trial.Add(2 * time.Second)
	if !b.Allow(trial) {
		t.Fatalf("expected trial call after second timeout")
	}
	b.OnSuccess(trial)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after one success, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})
	now := time.UnixMilli(9_000_000)

	// Failures are only counted while consecutive.
	b.OnFailure(now)
	b.OnFailure(now)
	b.OnSuccess(now)
	b.OnFailure(now)
	b.OnFailure(now)
	if b.State() != StateClosed {
		t.Fatalf("expected breaker to stay closed, got %s", b.State())
	}

	b.OnFailure(now)
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to open on third consecutive failure")
	}
}

func TestBreaker_StateChangeHook(t *testing.T) {
	var transitions []string
	b := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	}, WithStateChange(func(from, to State) {
		transitions = append(transitions, string(from)+">"+string(to))
	}))

	now := time.UnixMilli(100_000)
	b.OnFailure(now)
	b.Allow(now.Add(2 * time.Second))
	b.OnSuccess(now.Add(2 * time.Second))

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	if cfg.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", cfg.FailureThreshold)
	}
	if cfg.SuccessThreshold != 2 {
		t.Errorf("expected default success threshold 2, got %d", cfg.SuccessThreshold)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Timeout)
	}
}
