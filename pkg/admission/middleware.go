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

package admission

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

// IdentifierFunc extracts the admission identity from an HTTP request.
type IdentifierFunc func(r *http.Request) ratelimit.Identity

// DefaultIdentifierFunc prefers an API key header, then an authenticated
// user header, then the client IP.
func DefaultIdentifierFunc(r *http.Request) ratelimit.Identity {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return ratelimit.Identity{Kind: ratelimit.IdentityAPIKey, Value: key}
	}

	// Set by auth middleware upstream of this one.
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return ratelimit.Identity{Kind: ratelimit.IdentityUser, Value: userID}
	}

	return ratelimit.Identity{Kind: ratelimit.IdentityIP, Value: clientIP(r)}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MiddlewareConfig configures the admission middleware.
type MiddlewareConfig struct {
	// Controller evaluates admission attempts.
	Controller *Controller

	// ConfigFor returns the base limit for an endpoint.
	ConfigFor func(endpoint string) ratelimit.AlgorithmConfig

	// IdentifierFunc extracts the identity from requests.
	// If nil, DefaultIdentifierFunc is used.
	IdentifierFunc IdentifierFunc

	// EndpointFunc maps a request to its logical endpoint.
	// If nil, the URL path is used.
	EndpointFunc func(r *http.Request) string

	// ExcludedPaths are paths that bypass admission control.
	ExcludedPaths []string

	// OnLimited is called when a request is denied.
	// If nil, a default JSON error response is sent.
	OnLimited func(w http.ResponseWriter, r *http.Request, decision *ratelimit.Decision)
}

// Middleware creates an HTTP middleware that enforces admission control.
// Denied requests get a 429 with rate limit headers; engine errors fail
// open. After the wrapped handler runs, the response status feeds the
// behavior scorer.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Controller == nil || cfg.ConfigFor == nil {
		// Not configured, pass through
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	if cfg.IdentifierFunc == nil {
		cfg.IdentifierFunc = DefaultIdentifierFunc
	}

	if cfg.EndpointFunc == nil {
		cfg.EndpointFunc = func(r *http.Request) string { return r.URL.Path }
	}

	if cfg.OnLimited == nil {
		cfg.OnLimited = defaultOnLimited
	}

	// Build excluded paths map for fast lookup
	excludedPaths := make(map[string]bool)
	for _, path := range cfg.ExcludedPaths {
		excludedPaths[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excludedPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			identity := cfg.IdentifierFunc(r)
			if identity.IsZero() {
				// No identity, pass through
				next.ServeHTTP(w, r)
				return
			}

			endpoint := cfg.EndpointFunc(r)
			ctx := r.Context()

			decision, err := cfg.Controller.Evaluate(ctx, Request{
				Identity:    identity,
				Endpoint:    endpoint,
				NetworkAddr: r.RemoteAddr,
				Path:        r.URL.Path,
			}, cfg.ConfigFor(endpoint))
			if err != nil {
				slog.Error("Admission check failed", "error", err, "identity", identity.String())
				// On error, allow the request (fail open)
				next.ServeHTTP(w, r)
				return
			}

			// Store decision in context for downstream handlers
			ctx = context.WithValue(ctx, decisionKey{}, decision)
			r = r.WithContext(ctx)

			if !decision.Allowed {
				cfg.OnLimited(w, r, decision)
				_ = cfg.Controller.RecordOutcome(ctx, identity, false)
				return
			}

			SetRateLimitHeaders(w, decision)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if err := cfg.Controller.RecordOutcome(ctx, identity, rec.status >= http.StatusBadRequest); err != nil {
				slog.Debug("Failed to record request outcome", "error", err)
			}
		})
	}
}

// decisionKey is the context key for the admission decision.
type decisionKey struct{}

// DecisionFromContext extracts the admission decision from the request
// context, or nil when admission control did not run.
func DecisionFromContext(ctx context.Context) *ratelimit.Decision {
	if decision, ok := ctx.Value(decisionKey{}).(*ratelimit.Decision); ok {
		return decision
	}
	return nil
}

// defaultOnLimited sends a default 429 response.
func defaultOnLimited(w http.ResponseWriter, r *http.Request, decision *ratelimit.Decision) {
	w.Header().Set("Content-Type", "application/json")

	retryMs := decision.RetryAfterMs
	if decision.BackoffMs > retryMs {
		retryMs = decision.BackoffMs
	}
	if retryMs > 0 {
		// Retry-After is whole seconds, rounded up
		w.Header().Set("Retry-After", strconv.FormatInt((retryMs+999)/1000, 10))
	}

	SetRateLimitHeaders(w, decision)

	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "rate_limit_exceeded",
			"message": "rate limit exceeded",
		},
	}
	if decision.RetryAfterMs > 0 {
		response["retry_after_ms"] = decision.RetryAfterMs
	}
	if decision.BackoffMs > 0 {
		response["backoff_ms"] = decision.BackoffMs
	}

	_ = json.NewEncoder(w).Encode(response)
}

// SetRateLimitHeaders writes the standard X-RateLimit-* headers for a
// decision. The HTTP service surface shares it so callers see identical
// headers whether the engine runs in-process or behind the API.
func SetRateLimitHeaders(w http.ResponseWriter, decision *ratelimit.Decision) {
	if decision == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Capacity, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// SimpleMiddleware creates an admission middleware with default identity
// extraction. This is a convenience function for common use cases.
func SimpleMiddleware(ctrl *Controller, configFor func(string) ratelimit.AlgorithmConfig, excludedPaths ...string) func(http.Handler) http.Handler {
	return Middleware(MiddlewareConfig{
		Controller:    ctrl,
		ConfigFor:     configFor,
		ExcludedPaths: excludedPaths,
	})
}
