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

package observability

import (
	"context"
	"net/http"
	"time"
)

// NoopManager returns a Manager that records nothing.
// Use this when observability is completely disabled.
func NoopManager() *Manager {
	return &Manager{metrics: NoopMetrics{}}
}

// NoopMetrics is a metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordDecision(_ context.Context, _ string, _ bool, _ time.Duration) {}
func (NoopMetrics) RecordFallback(_ context.Context, _ string)                          {}
func (NoopMetrics) RecordPolicyLayers(_ context.Context, _ []string)                    {}
func (NoopMetrics) RecordBreakerTransition(_ context.Context, _, _ string)              {}
func (NoopMetrics) RecordStoreError(_ context.Context)                                  {}
func (NoopMetrics) RecordHTTPRequest(_ context.Context, _, _ string, _ int, _ time.Duration) {
}

// Handler returns a handler that reports metrics as disabled.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
