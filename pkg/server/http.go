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
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kadirpekel/cerberus/pkg/admission"
	"github.com/kadirpekel/cerberus/pkg/config"
	"github.com/kadirpekel/cerberus/pkg/observability"
	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

// HTTPServer exposes the admission controller over HTTP.
type HTTPServer struct {
	serverCfg *config.ServerConfig
	appCfg    *config.Config
	server    *http.Server

	ctrl *admission.Controller

	// Observability: tracing and metrics
	observability *observability.Manager

	mu sync.RWMutex
}

// HTTPServerOption configures the HTTP server.
type HTTPServerOption func(*HTTPServer)

// WithObservability sets the observability manager for tracing and metrics.
func WithObservability(obs *observability.Manager) HTTPServerOption {
	return func(s *HTTPServer) {
		s.observability = obs
	}
}

// NewHTTPServer creates a new HTTP server from config.
// ctrl carries the fully wired admission pipeline and must not be nil.
func NewHTTPServer(appCfg *config.Config, ctrl *admission.Controller, opts ...HTTPServerOption) *HTTPServer {
	serverCfg := &appCfg.Server

	if serverCfg.Host == "" || serverCfg.Port == 0 {
		serverCfg.SetDefaults()
	}

	s := &HTTPServer{
		serverCfg: serverCfg,
		appCfg:    appCfg,
		ctrl:      ctrl,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	// IdentityKind is one of "ip", "user", "api_key", "anonymous".
	// Defaults to "ip".
	IdentityKind string `json:"identity_kind,omitempty"`

	// IdentityValue is the caller being limited (address, user ID, key).
	// Required unless the kind is "anonymous".
	IdentityValue string `json:"identity_value,omitempty"`

	// Endpoint selects the configured limit. Unknown or empty endpoints
	// fall back to the default limit.
	Endpoint string `json:"endpoint,omitempty"`

	// NetworkAddress feeds the geo policy layer, when configured.
	NetworkAddress string `json:"network_address,omitempty"`

	// Path feeds the suspicious-pattern scan, when configured.
	Path string `json:"path,omitempty"`
}

// OutcomeRequest is the body of POST /v1/outcome.
type OutcomeRequest struct {
	IdentityKind  string `json:"identity_kind,omitempty"`
	IdentityValue string `json:"identity_value,omitempty"`

	// IsError marks the request as failed (status >= 400 or equivalent).
	IsError bool `json:"is_error"`
}

// Start starts the HTTP server and blocks until the context is canceled
// or the listener fails.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.serverCfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.serverCfg.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}

	return nil
}

// Address returns the HTTP server address.
func (s *HTTPServer) Address() string {
	return s.serverCfg.Address()
}

// Handler returns the fully assembled HTTP handler, including the
// middleware chain. Exposed so the service can be mounted under a
// larger router.
func (s *HTTPServer) Handler() http.Handler {
	var handler http.Handler = s.setupRoutes()

	handler = s.loggingMiddleware(handler)
	handler = s.requestIDMiddleware(handler)

	// Observability middleware (outermost for complete request coverage)
	if s.observability != nil {
		handler = observability.HTTPMiddleware(
			s.observability.GetTracer(observability.DefaultServiceName),
			s.observability.GetMetrics(),
		)(handler)
	}

	return handler
}

// UpdateConfig atomically swaps the configuration (for hot-reload).
// Limit changes take effect on the next request; changing the listen
// address requires a restart.
func (s *HTTPServer) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appCfg = cfg

	endpoints := 0
	if cfg.Limits != nil {
		endpoints = len(cfg.Limits.Endpoints)
	}
	slog.Debug("Configuration updated", "endpoint_limits", endpoints)
}

// setupRoutes configures the HTTP routes:
//   - GET  /health      → liveness + circuit breaker state
//   - POST /v1/check    → evaluate one admission request
//   - POST /v1/outcome  → record a request outcome for the scorer
//   - GET  <metrics>    → Prometheus scrape endpoint (if enabled)
func (s *HTTPServer) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/check", s.handleCheck)
		r.Post("/outcome", s.handleOutcome)
	})

	// Prometheus metrics endpoint (if enabled)
	if s.observability != nil && s.appCfg.Observability.Metrics.Enabled {
		endpoint := s.appCfg.Observability.Metrics.Endpoint
		if endpoint == "" {
			endpoint = observability.DefaultMetricsPath
		}
		r.Method(http.MethodGet, endpoint, s.observability.GetMetrics().Handler())
		slog.Info("Metrics endpoint enabled", "path", endpoint)
	}

	return r
}

// handleHealth returns server health status and the breaker state.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"breaker": string(s.ctrl.BreakerState()),
	})
}

// handleCheck evaluates a single admission request and returns the
// decision. The response status is always 200; enforcement is the
// caller's job, the decision body says whether to admit.
func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	identity, err := parseIdentity(req.IdentityKind, req.IdentityValue)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_identity", err.Error())
		return
	}

	base := ratelimit.AlgorithmConfigFromLimit(s.limitFor(req.Endpoint))

	decision, err := s.ctrl.Evaluate(r.Context(), admission.Request{
		Identity:    identity,
		Endpoint:    req.Endpoint,
		NetworkAddr: req.NetworkAddress,
		Path:        req.Path,
	}, base)
	if err != nil {
		slog.Error("Admission evaluation failed",
			"identity", identity.String(),
			"endpoint", req.Endpoint,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeJSONError(w, http.StatusInternalServerError, "evaluation_failed", "admission evaluation failed")
		return
	}

	admission.SetRateLimitHeaders(w, decision)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(decision)
}

// handleOutcome records one request outcome for the behavior scorer.
func (s *HTTPServer) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	identity, err := parseIdentity(req.IdentityKind, req.IdentityValue)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_identity", err.Error())
		return
	}

	if err := s.ctrl.RecordOutcome(r.Context(), identity, req.IsError); err != nil {
		slog.Error("Outcome recording failed",
			"identity", identity.String(),
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeJSONError(w, http.StatusInternalServerError, "outcome_failed", "failed to record outcome")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// limitFor resolves the configured limit for an endpoint under the
// read lock, so hot-reloads swap limits without a restart.
func (s *HTTPServer) limitFor(endpoint string) *config.LimitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.appCfg.Limits == nil {
		lc := &config.LimitConfig{}
		lc.SetDefaults()
		return lc
	}
	return s.appCfg.Limits.For(endpoint)
}

// parseIdentity validates the identity fields of a request body.
func parseIdentity(kind, value string) (ratelimit.Identity, error) {
	k := ratelimit.IdentityKind(kind)
	if kind == "" {
		k = ratelimit.IdentityIP
	}

	switch k {
	case ratelimit.IdentityIP, ratelimit.IdentityUser, ratelimit.IdentityAPIKey, ratelimit.IdentityAnonymous:
	default:
		return ratelimit.Identity{}, fmt.Errorf("unknown identity kind %q", kind)
	}

	identity := ratelimit.Identity{Kind: k, Value: value}
	if identity.IsZero() {
		return ratelimit.Identity{}, fmt.Errorf("identity_value is required for kind %q", k)
	}
	return identity, nil
}

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// RequestIDFromContext returns the request ID assigned by the server,
// or "" when called outside a request.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware tags each request with an ID for log correlation,
// honoring one supplied by the caller.
func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs requests (don't wrap ResponseWriter).
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// writeJSONError writes an error response in the standard error shape.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
