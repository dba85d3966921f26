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

package policy

import "time"

// WarmupPolicy may ramp capacity for identities still inside their warmup
// period. periodMs comes from the limit configuration; firstSeenAt from the
// identity's behavior profile.
type WarmupPolicy interface {
	Adjust(capacity int64, periodMs int64, firstSeenAt, now time.Time) int64
}

// NoopWarmup grants full capacity from the first request.
type NoopWarmup struct{}

func (NoopWarmup) Adjust(capacity int64, _ int64, _, _ time.Time) int64 {
	return capacity
}

// LinearWarmup ramps capacity from StartFraction of the ceiling up to the
// full ceiling over the warmup period.
type LinearWarmup struct {
	// StartFraction of capacity granted to a brand-new identity.
	// Defaults to 0.1.
	StartFraction float64
}

// Compile-time interface checks
var (
	_ WarmupPolicy = (*NoopWarmup)(nil)
	_ WarmupPolicy = (*LinearWarmup)(nil)
)

func (w LinearWarmup) Adjust(capacity int64, periodMs int64, firstSeenAt, now time.Time) int64 {
	if capacity <= 0 || periodMs <= 0 {
		return capacity
	}
	elapsed := now.Sub(firstSeenAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= periodMs {
		return capacity
	}

	start := w.StartFraction
	if start <= 0 || start > 1 {
		start = 0.1
	}
	frac := start + (1-start)*(float64(elapsed)/float64(periodMs))
	adjusted := int64(float64(capacity) * frac)
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted
}
