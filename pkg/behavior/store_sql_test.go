package behavior

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestSQLStore(t *testing.T) (*SQLProfileStore, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "behavior_test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLProfileStore(db, "sqlite")
	if err != nil {
		t.Fatalf("failed to create SQL profile store: %v", err)
	}
	return store, db
}

func TestSQLProfileStore_RecordAndGet(t *testing.T) {
	store, _ := newTestSQLStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	params := ScoreParams{}
	params.SetDefaults()

	// Unknown identity reads as absent, not an error.
	profile, err := store.Get(ctx, "user:erin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile for unseen identity, got %+v", profile)
	}

	// First outcome creates the profile at neutral reputation.
	profile, err = store.RecordOutcome(ctx, "user:erin", true, now, params)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if got, want := profile.ReputationScore, NeutralScore-params.ErrorPenalty; !closeTo(got, want) {
		t.Errorf("expected reputation %v, got %v", want, got)
	}
	if profile.TotalRequests != 1 || profile.ErrorCount != 1 {
		t.Errorf("expected 1/1 counts, got %d/%d", profile.TotalRequests, profile.ErrorCount)
	}
	if !profile.FirstSeenAt.Equal(now) {
		t.Errorf("expected FirstSeenAt %v, got %v", now, profile.FirstSeenAt)
	}

	// A success later adds the recovery credit on top of decay.
	later := now.Add(time.Hour)
	profile, err = store.RecordOutcome(ctx, "user:erin", false, later, params)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if profile.TotalRequests != 2 || profile.ErrorCount != 1 {
		t.Errorf("expected 2/1 counts, got %d/%d", profile.TotalRequests, profile.ErrorCount)
	}
	if profile.ReputationScore <= NeutralScore-params.ErrorPenalty {
		t.Errorf("expected reputation to recover above %v, got %v",
			NeutralScore-params.ErrorPenalty, profile.ReputationScore)
	}

	// Get round-trips what RecordOutcome returned.
	fetched, err := store.Get(ctx, "user:erin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected a stored profile")
	}
	if !closeTo(fetched.ReputationScore, profile.ReputationScore) {
		t.Errorf("Get reputation %v does not match RecordOutcome result %v",
			fetched.ReputationScore, profile.ReputationScore)
	}
}

func TestSQLProfileStore_PersistsAcrossInstances(t *testing.T) {
	store, db := newTestSQLStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	params := ScoreParams{}
	params.SetDefaults()

	for i := 0; i < 5; i++ {
		if _, err := store.RecordOutcome(ctx, "api_key:k-9", i%2 == 0, now, params); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close must not tear down the shared handle; a second store over the
	// same database sees the rows.
	reopened, err := NewSQLProfileStore(db, "sqlite")
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	profile, err := reopened.Get(ctx, "api_key:k-9")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if profile == nil {
		t.Fatal("expected profile to survive store recreation")
	}
	if profile.TotalRequests != 5 {
		t.Errorf("expected 5 requests, got %d", profile.TotalRequests)
	}
	if profile.ErrorCount != 3 {
		t.Errorf("expected 3 errors, got %d", profile.ErrorCount)
	}
}

func TestSQLProfileStore_UnsupportedDialect(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dialect_test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	defer db.Close()

	if _, err := NewSQLProfileStore(db, "oracle"); err == nil {
		t.Error("expected an error for unsupported dialect")
	}
}
