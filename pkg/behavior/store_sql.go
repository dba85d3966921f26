// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package behavior

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	// SQL schema for the behavior_profiles table.
	createProfileTableSQL = `
CREATE TABLE IF NOT EXISTS behavior_profiles (
    identity VARCHAR(255) NOT NULL,
    total_requests BIGINT NOT NULL DEFAULT 0,
    error_count BIGINT NOT NULL DEFAULT 0,
    reputation DOUBLE PRECISION NOT NULL,
    first_seen_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (identity)
);

CREATE INDEX IF NOT EXISTS idx_behavior_profiles_updated_at ON behavior_profiles(updated_at);
`
)

// SQLProfileStore is a SQL-based implementation of ProfileStore. Reputation
// outlives process restarts here, which suits the durable, never-deleted
// nature of profiles. It supports Postgres, MySQL, and SQLite.
type SQLProfileStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLProfileStore creates a new SQL-based profile store.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewSQLProfileStore(db *sql.DB, dialect string) (*SQLProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
		// Valid dialects
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLProfileStore{
		db:      db,
		dialect: dialect,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the necessary tables.
func (s *SQLProfileStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createProfileTableSQL); err != nil {
		return fmt.Errorf("failed to create behavior_profiles table: %w", err)
	}

	return nil
}

// Get returns the stored profile, or nil when absent.
func (s *SQLProfileStore) Get(ctx context.Context, identity string) (*Profile, error) {
	query := `SELECT total_requests, error_count, reputation, first_seen_at, updated_at FROM behavior_profiles WHERE identity = ?`
	if s.dialect == "postgres" {
		query = `SELECT total_requests, error_count, reputation, first_seen_at, updated_at FROM behavior_profiles WHERE identity = $1`
	}

	p := &Profile{Identity: identity}
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&p.TotalRequests, &p.ErrorCount, &p.ReputationScore, &p.FirstSeenAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	return p, nil
}

// RecordOutcome applies one request outcome inside a transaction. Postgres
// and MySQL take a row lock; SQLite is serialized by its single shared
// connection.
func (s *SQLProfileStore) RecordOutcome(ctx context.Context, identity string, isError bool, now time.Time, params ScoreParams) (*Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT total_requests, error_count, reputation, first_seen_at, updated_at FROM behavior_profiles WHERE identity = ?`
	if s.dialect == "postgres" {
		query = `SELECT total_requests, error_count, reputation, first_seen_at, updated_at FROM behavior_profiles WHERE identity = $1 FOR UPDATE`
	} else if s.dialect == "mysql" {
		query += ` FOR UPDATE`
	}

	p := &Profile{Identity: identity}
	var updatedAt time.Time
	row := tx.QueryRowContext(ctx, query, identity)
	err = row.Scan(&p.TotalRequests, &p.ErrorCount, &p.ReputationScore, &p.FirstSeenAt, &updatedAt)
	if err == sql.ErrNoRows {
		p.ReputationScore = NeutralScore
		p.FirstSeenAt = now
		updatedAt = now
	} else if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	reputation := decayToward(p.ReputationScore, updatedAt, now, params.DecayHalfLife)
	p.TotalRequests++
	if isError {
		p.ErrorCount++
		reputation -= params.ErrorPenalty
	} else {
		reputation += params.RecoveryCredit
	}
	p.ReputationScore = clampScore(reputation)
	p.UpdatedAt = now

	var upsert string
	if s.dialect == "postgres" {
		upsert = `
			INSERT INTO behavior_profiles (identity, total_requests, error_count, reputation, first_seen_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (identity)
			DO UPDATE SET total_requests = EXCLUDED.total_requests, error_count = EXCLUDED.error_count, reputation = EXCLUDED.reputation, updated_at = EXCLUDED.updated_at
		`
	} else if s.dialect == "mysql" {
		upsert = `
			INSERT INTO behavior_profiles (identity, total_requests, error_count, reputation, first_seen_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE total_requests = VALUES(total_requests), error_count = VALUES(error_count), reputation = VALUES(reputation), updated_at = VALUES(updated_at)
		`
	} else {
		// SQLite
		upsert = `
			INSERT OR REPLACE INTO behavior_profiles (identity, total_requests, error_count, reputation, first_seen_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
	}

	if _, err := tx.ExecContext(ctx, upsert, identity, p.TotalRequests, p.ErrorCount, p.ReputationScore, p.FirstSeenAt, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit profile update: %w", err)
	}

	return p, nil
}

// Close closes the store.
// Note: This does NOT close the underlying database connection,
// as that connection may be shared with other components.
func (s *SQLProfileStore) Close() error {
	// Don't close the database connection as it may be shared
	return nil
}

// Dialect returns the SQL dialect (for testing).
func (s *SQLProfileStore) Dialect() string {
	return s.dialect
}
