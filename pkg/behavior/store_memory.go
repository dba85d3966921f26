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
	"sync"
	"time"
)

// MemoryProfileStore is an in-memory implementation of ProfileStore.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments.
type MemoryProfileStore struct {
	profiles map[string]*Profile
	mu       sync.Mutex
}

// NewMemoryProfileStore creates a new in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles: make(map[string]*Profile),
	}
}

// Get returns a copy of the stored profile, or nil when absent.
func (s *MemoryProfileStore) Get(ctx context.Context, identity string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.profiles[identity]
	if !exists {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

// RecordOutcome applies one request outcome atomically under the store
// lock.
func (s *MemoryProfileStore) RecordOutcome(ctx context.Context, identity string, isError bool, now time.Time, params ScoreParams) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.profiles[identity]
	if !exists {
		p = &Profile{
			Identity:        identity,
			ReputationScore: NeutralScore,
			FirstSeenAt:     now,
			UpdatedAt:       now,
		}
		s.profiles[identity] = p
	}

	reputation := decayToward(p.ReputationScore, p.UpdatedAt, now, params.DecayHalfLife)
	p.TotalRequests++
	if isError {
		p.ErrorCount++
		reputation -= params.ErrorPenalty
	} else {
		reputation += params.RecoveryCredit
	}
	p.ReputationScore = clampScore(reputation)
	p.UpdatedAt = now

	copied := *p
	return &copied, nil
}

// Close closes the store.
func (s *MemoryProfileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make(map[string]*Profile)
	return nil
}

// Len returns the number of tracked identities (for testing).
func (s *MemoryProfileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
