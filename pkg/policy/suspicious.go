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

package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPatternPenalty divides capacity when a request path matches a
// suspicious pattern.
const DefaultPatternPenalty = 4.0

// defaultSuspiciousPatterns cover the common probe shapes: path traversal,
// script injection, SQL injection, command injection and hostile
// percent-encoding.
var defaultSuspiciousPatterns = []string{
	`\.\./`,
	`(?i)<\s*script`,
	`(?i)(union\s+select|insert\s+into|drop\s+table|or\s+1\s*=\s*1)`,
	`(?i)[;&|]\s*(sh|bash|cmd|powershell)\b`,
	`(?i)%2e%2e|%252e|%00|%3cscript`,
}

// PatternScanner flags request paths that match suspicious patterns.
// Detections are logged, but the log stream is throttled so a scan burst
// cannot flood the output.
type PatternScanner struct {
	patterns []*regexp.Regexp
	penalty  float64
	logger   *slog.Logger
	logGate  *rate.Limiter
}

// NewPatternScanner compiles the pattern list. An empty list selects the
// built-in defaults. Penalty must be at least 1; zero selects the default.
func NewPatternScanner(patterns []string, penalty float64, logger *slog.Logger) (*PatternScanner, error) {
	if len(patterns) == 0 {
		patterns = defaultSuspiciousPatterns
	}
	if penalty == 0 {
		penalty = DefaultPatternPenalty
	}
	if penalty < 1 {
		return nil, fmt.Errorf("pattern penalty must be at least 1, got %v", penalty)
	}
	if logger == nil {
		logger = slog.Default()
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid suspicious pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &PatternScanner{
		patterns: compiled,
		penalty:  penalty,
		logger:   logger,
		// At most one detection log line per ten seconds, with room for a
		// small initial burst.
		logGate: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}, nil
}

// Match reports whether the path trips any pattern, returning the pattern
// that fired.
func (s *PatternScanner) Match(path string) (string, bool) {
	for _, re := range s.patterns {
		if re.MatchString(path) {
			if s.logGate.Allow() {
				s.logger.Warn("Suspicious pattern detected",
					"pattern", re.String(),
					"path", path)
			}
			return re.String(), true
		}
	}
	return "", false
}

// Multiplier returns the capacity multiplier applied on a match.
func (s *PatternScanner) Multiplier() float64 {
	return 1 / s.penalty
}
