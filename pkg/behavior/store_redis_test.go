package behavior

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisProfileStore(t *testing.T) *RedisProfileStore {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	prefix := fmt.Sprintf("cerberus-test-%s", uuid.NewString()[:8])
	store, err := NewRedisProfileStore(client, prefix)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		store.Close()
	})
	return store
}

func TestRedisProfileStore_RecordAndGet(t *testing.T) {
	store := newTestRedisProfileStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	params := ScoreParams{}
	params.SetDefaults()

	profile, err := store.Get(ctx, "user:frank")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile for unseen identity, got %+v", profile)
	}

	profile, err = store.RecordOutcome(ctx, "user:frank", true, now, params)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if got, want := profile.ReputationScore, NeutralScore-params.ErrorPenalty; !closeTo(got, want) {
		t.Errorf("expected reputation %v, got %v", want, got)
	}

	for i := 0; i < 4; i++ {
		if _, err := store.RecordOutcome(ctx, "user:frank", false, now, params); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	fetched, err := store.Get(ctx, "user:frank")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected a stored profile")
	}
	if fetched.TotalRequests != 5 {
		t.Errorf("expected 5 requests, got %d", fetched.TotalRequests)
	}
	if fetched.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", fetched.ErrorCount)
	}
	want := NeutralScore - params.ErrorPenalty + 4*params.RecoveryCredit
	if !closeTo(fetched.ReputationScore, want) {
		t.Errorf("expected reputation %v, got %v", want, fetched.ReputationScore)
	}
}

func TestRedisProfileStore_DecayAppliedOnWrite(t *testing.T) {
	store := newTestRedisProfileStore(t)
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	params := ScoreParams{DecayHalfLife: 24 * time.Hour}
	params.SetDefaults()

	// Drive reputation to 80 with ten errors.
	for i := 0; i < 10; i++ {
		if _, err := store.RecordOutcome(ctx, "ip:203.0.113.80", true, start, params); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	// One half-life later the gap halves before the next update applies:
	// 80 -> 90, then the success credit.
	profile, err := store.RecordOutcome(ctx, "ip:203.0.113.80", false, start.Add(24*time.Hour), params)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if got, want := profile.ReputationScore, 90+params.RecoveryCredit; !closeTo(got, want) {
		t.Errorf("expected reputation %v after decay, got %v", want, got)
	}
}
