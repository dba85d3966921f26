package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kadirpekel/cerberus/pkg/ratelimit"
)

func newMiddlewareController(t *testing.T) *Controller {
	t.Helper()
	return newTestController(t, ratelimit.NewMemoryStore(), newStubClock(1_000_000))
}

func fixedConfig(capacity int64) func(string) ratelimit.AlgorithmConfig {
	return func(string) ratelimit.AlgorithmConfig {
		return tokenBucketConfig(capacity)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	ctrl := newMiddlewareController(t)
	handler := SimpleMiddleware(ctrl, fixedConfig(5))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected limit header 5, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected remaining header 4, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected reset header to be set")
	}
}

func TestMiddleware_DeniesWith429(t *testing.T) {
	ctrl := newMiddlewareController(t)
	handler := SimpleMiddleware(ctrl, fixedConfig(1))(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	first.RemoteAddr = "192.0.2.1:4242"
	handler.ServeHTTP(httptest.NewRecorder(), first)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on denial")
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected remaining 0, got %q", got)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode denial body: %v", err)
	}
	if body.Error.Code != "rate_limit_exceeded" {
		t.Errorf("expected rate_limit_exceeded code, got %q", body.Error.Code)
	}
}

func TestMiddleware_IdentityHeaders(t *testing.T) {
	ctrl := newMiddlewareController(t)
	handler := SimpleMiddleware(ctrl, fixedConfig(1))(okHandler())

	// Exhaust the api_key identity.
	keyReq := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	keyReq.RemoteAddr = "192.0.2.1:4242"
	keyReq.Header.Set("X-API-Key", "alpha")
	handler.ServeHTTP(httptest.NewRecorder(), keyReq)

	denied := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	denied.RemoteAddr = "192.0.2.1:4242"
	denied.Header.Set("X-API-Key", "alpha")
	deniedRec := httptest.NewRecorder()
	handler.ServeHTTP(deniedRec, denied)
	if deniedRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected api key to be exhausted, got %d", deniedRec.Code)
	}

	// A different api key from the same address is untouched.
	other := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	other.RemoteAddr = "192.0.2.1:4242"
	other.Header.Set("X-API-Key", "beta")
	otherRec := httptest.NewRecorder()
	handler.ServeHTTP(otherRec, other)
	if otherRec.Code != http.StatusOK {
		t.Errorf("expected independent counter per api key, got %d", otherRec.Code)
	}

	// And so is the bare IP identity.
	ip := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	ip.RemoteAddr = "192.0.2.1:4242"
	ipRec := httptest.NewRecorder()
	handler.ServeHTTP(ipRec, ip)
	if ipRec.Code != http.StatusOK {
		t.Errorf("expected independent counter for ip identity, got %d", ipRec.Code)
	}
}

func TestMiddleware_UserHeaderIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	req.Header.Set("X-User-ID", "user-7")

	id := DefaultIdentifierFunc(req)
	if id.Kind != ratelimit.IdentityUser || id.Value != "user-7" {
		t.Errorf("expected user identity, got %s", id)
	}

	req.Header.Set("X-API-Key", "key-1")
	id = DefaultIdentifierFunc(req)
	if id.Kind != ratelimit.IdentityAPIKey || id.Value != "key-1" {
		t.Errorf("expected api key to take precedence, got %s", id)
	}

	req.Header.Del("X-API-Key")
	req.Header.Del("X-User-ID")
	id = DefaultIdentifierFunc(req)
	if id.Kind != ratelimit.IdentityIP || id.Value != "192.0.2.1" {
		t.Errorf("expected ip identity without port, got %s", id)
	}
}

func TestMiddleware_ExcludedPaths(t *testing.T) {
	ctrl := newMiddlewareController(t)
	handler := SimpleMiddleware(ctrl, fixedConfig(1), "/health")(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected excluded path to always pass, got %d", rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Error("expected no rate limit headers on excluded path")
		}
	}
}

func TestMiddleware_FailsOpenOnConfigError(t *testing.T) {
	ctrl := newMiddlewareController(t)
	badConfig := func(string) ratelimit.AlgorithmConfig {
		return ratelimit.AlgorithmConfig{Algorithm: ratelimit.Algorithm("bogus"), Capacity: 1, WindowMs: 1000}
	}
	handler := Middleware(MiddlewareConfig{Controller: ctrl, ConfigFor: badConfig})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open pass-through, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("expected no rate limit headers when the engine errored")
	}
}

func TestMiddleware_DecisionInContext(t *testing.T) {
	ctrl := newMiddlewareController(t)

	var seen *ratelimit.Decision
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DecisionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := SimpleMiddleware(ctrl, fixedConfig(3))(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == nil {
		t.Fatal("expected decision in request context")
	}
	if !seen.Allowed || seen.Capacity != 3 {
		t.Errorf("unexpected decision in context: %+v", seen)
	}
}

func TestMiddleware_Passthrough_WhenUnconfigured(t *testing.T) {
	handler := Middleware(MiddlewareConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected passthrough middleware, got %d", rec.Code)
	}
}
