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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/cerberus/pkg/admission"
	"github.com/kadirpekel/cerberus/pkg/behavior"
	"github.com/kadirpekel/cerberus/pkg/config"
	"github.com/kadirpekel/cerberus/pkg/observability"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

func testConfig(capacity int64) *config.Config {
	cfg := &config.Config{
		Limits: &config.LimitsConfig{
			Default: &config.LimitConfig{
				Algorithm: "sliding_window",
				Capacity:  capacity,
				Window:    time.Minute,
			},
			Endpoints: map[string]*config.LimitConfig{
				"/api/search": {
					Algorithm: "sliding_window",
					Capacity:  1,
					Window:    time.Minute,
				},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, ctrlOpts ...admission.Option) *HTTPServer {
	t.Helper()

	exec, err := ratelimit.NewExecutor(ratelimit.NewMemoryStore())
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	ctrl, err := admission.NewController(exec, ctrlOpts...)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return NewHTTPServer(cfg, ctrl)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) *ratelimit.Decision {
	t.Helper()
	var decision ratelimit.Decision
	if err := json.NewDecoder(rec.Body).Decode(&decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	return &decision
}

func TestServer_CheckAllowsThenDenies(t *testing.T) {
	srv := newTestServer(t, testConfig(2))
	handler := srv.Handler()

	body := `{"identity_kind":"user","identity_value":"u1","endpoint":"/api/data"}`

	for i := 0; i < 2; i++ {
		rec := postJSON(t, handler, "/v1/check", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("check %d: expected status 200, got %d", i, rec.Code)
		}
		decision := decodeDecision(t, rec)
		if !decision.Allowed {
			t.Fatalf("check %d: expected allowed decision", i)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("check %d: expected X-RateLimit-Limit 2, got %q", i, got)
		}
	}

	rec := postJSON(t, handler, "/v1/check", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 on denial, got %d", rec.Code)
	}
	decision := decodeDecision(t, rec)
	if decision.Allowed {
		t.Fatal("expected denial after capacity exhausted")
	}
	if decision.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", decision.Remaining)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}
	if decision.RetryAfterMs <= 0 {
		t.Errorf("expected positive retry_after_ms, got %d", decision.RetryAfterMs)
	}
}

func TestServer_CheckEndpointLimit(t *testing.T) {
	srv := newTestServer(t, testConfig(10))
	handler := srv.Handler()

	body := `{"identity_kind":"api_key","identity_value":"k1","endpoint":"/api/search"}`

	rec := postJSON(t, handler, "/v1/check", body)
	if decision := decodeDecision(t, rec); !decision.Allowed {
		t.Fatal("expected first search request allowed")
	}
	rec = postJSON(t, handler, "/v1/check", body)
	if decision := decodeDecision(t, rec); decision.Allowed {
		t.Fatal("expected second search request denied by endpoint limit")
	}

	// Other endpoints still use the roomier default.
	rec = postJSON(t, handler, "/v1/check",
		`{"identity_kind":"api_key","identity_value":"k1","endpoint":"/api/data"}`)
	if decision := decodeDecision(t, rec); !decision.Allowed {
		t.Fatal("expected default-limit endpoint to admit")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("expected default limit 10, got %q", got)
	}
}

func TestServer_CheckValidation(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{not json`, "invalid_request"},
		{"missing value", `{"identity_kind":"user"}`, "invalid_identity"},
		{"unknown kind", `{"identity_kind":"martian","identity_value":"x"}`, "invalid_identity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/v1/check", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			var resp struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestServer_CheckDefaultsToIPKind(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	rec := postJSON(t, handler, "/v1/check", `{"identity_value":"203.0.113.9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if decision := decodeDecision(t, rec); !decision.Allowed {
		t.Fatal("expected allowed decision for bare IP identity")
	}
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var health map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("expected status ok, got %q", health["status"])
	}
	if health["breaker"] != "closed" {
		t.Errorf("expected breaker closed, got %q", health["breaker"])
	}
}

func TestServer_OutcomeFeedsScorer(t *testing.T) {
	scorer := behavior.NewScorer(behavior.NewMemoryProfileStore(), behavior.ScoreParams{})
	srv := newTestServer(t, testConfig(5), admission.WithScorer(scorer))
	handler := srv.Handler()

	body := `{"identity_kind":"user","identity_value":"u9","is_error":true}`
	for i := 0; i < 5; i++ {
		rec := postJSON(t, handler, "/v1/outcome", body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("outcome %d: expected status 202, got %d", i, rec.Code)
		}
	}

	score, _, err := scorer.Score(context.Background(), "user:u9", time.Now())
	if err != nil {
		t.Fatalf("score lookup failed: %v", err)
	}
	if score >= 100 {
		t.Errorf("expected reported errors to pull score below neutral, got %v", score)
	}

	rec := postJSON(t, handler, "/v1/outcome", `{"is_error":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing identity, got %d", rec.Code)
	}
}

func TestServer_OutcomeWithoutScorer(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	rec := postJSON(t, handler, "/v1/outcome",
		`{"identity_kind":"user","identity_value":"u1","is_error":false}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 without scorer, got %d", rec.Code)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(5)
	cfg.Observability.Metrics.Enabled = true

	mgr := observability.NewManager(cfg.Observability)
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize observability: %v", err)
	}
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	exec, err := ratelimit.NewExecutor(ratelimit.NewMemoryStore())
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	ctrl, err := admission.NewController(exec, admission.WithMetrics(mgr.GetMetrics()))
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	srv := NewHTTPServer(cfg, ctrl, WithObservability(mgr))
	handler := srv.Handler()

	// Generate one decision so the scrape has something to report.
	postJSON(t, handler, "/v1/check", `{"identity_kind":"user","identity_value":"u1"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 from metrics endpoint, got %d", rec.Code)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 when metrics disabled, got %d", rec.Code)
	}
}

func TestServer_RequestID(t *testing.T) {
	srv := newTestServer(t, testConfig(5))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("expected caller-supplied request ID echoed, got %q", got)
	}
}

func TestServer_UpdateConfig(t *testing.T) {
	srv := newTestServer(t, testConfig(1))
	handler := srv.Handler()

	body := `{"identity_kind":"user","identity_value":"u1","endpoint":"/api/data"}`

	rec := postJSON(t, handler, "/v1/check", body)
	if decision := decodeDecision(t, rec); !decision.Allowed {
		t.Fatal("expected first request allowed")
	}
	rec = postJSON(t, handler, "/v1/check", body)
	if decision := decodeDecision(t, rec); decision.Allowed {
		t.Fatal("expected denial at capacity 1")
	}

	srv.UpdateConfig(testConfig(3))

	rec = postJSON(t, handler, "/v1/check", body)
	if decision := decodeDecision(t, rec); !decision.Allowed {
		t.Fatal("expected admit after capacity raise")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("expected X-RateLimit-Limit 3 after reload, got %q", got)
	}
}
