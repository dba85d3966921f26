package behavior

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryProfileStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	params := ScoreParams{}
	params.SetDefaults()

	if _, err := store.RecordOutcome(ctx, "user:carol", true, now, params); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	first, err := store.Get(ctx, "user:carol")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.ReputationScore = -999

	second, err := store.Get(ctx, "user:carol")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.ReputationScore == -999 {
		t.Error("mutating a returned profile must not affect the store")
	}
}

func TestMemoryProfileStore_ConcurrentOutcomes(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	params := ScoreParams{}
	params.SetDefaults()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(isError bool) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := store.RecordOutcome(ctx, "ip:192.0.2.1", isError, now, params); err != nil {
					t.Errorf("RecordOutcome failed: %v", err)
					return
				}
			}
		}(i%2 == 0)
	}
	wg.Wait()

	profile, err := store.Get(ctx, "ip:192.0.2.1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got, want := profile.TotalRequests, int64(workers*perWorker); got != want {
		t.Errorf("expected %d total requests, got %d", want, got)
	}
	if got, want := profile.ErrorCount, int64(workers/2*perWorker); got != want {
		t.Errorf("expected %d errors, got %d", want, got)
	}
}

func TestMemoryProfileStore_Close(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	params := ScoreParams{}
	params.SetDefaults()

	if _, err := store.RecordOutcome(ctx, "user:dave", false, time.Now(), params); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 profile, got %d", store.Len())
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected store to be empty after Close, got %d", store.Len())
	}
}
