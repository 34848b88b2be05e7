package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solidus-pim/server/internal/config"
)

func TestLoginRateLimit_AllowsInitialBurst(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "192.168.1.100:12345" // Same IP for all requests
		req = req.WithContext(WithRateLimitTier(req.Context(), TierLogin))
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, res.Code)
		}
	}
}

func TestLoginRateLimit_BlocksAfterBurst(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	clientIP := "192.168.1.101:54321"

	// Exhaust the burst allowance
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = clientIP
		req = req.WithContext(WithRateLimitTier(req.Context(), TierLogin))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
	}

	// 6th request should be rate limited
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = clientIP
	req = req.WithContext(WithRateLimitTier(req.Context(), TierLogin))
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", res.Code)
	}

	retryAfter := res.Header().Get("Retry-After")
	if retryAfter != "180" {
		t.Errorf("expected Retry-After header to be 180, got %s", retryAfter)
	}
}

func TestLoginRateLimit_PerIPIsolation(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Exhaust the allowance for the first client
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req = req.WithContext(WithRateLimitTier(req.Context(), TierLogin))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
	}

	// A different client still gets through
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:1000"
	req = req.WithContext(WithRateLimitTier(req.Context(), TierLogin))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200 for second client, got %d", res.Code)
	}
}

func TestRateLimit_SkipsHealthEndpoints(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1}
	handler := RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.3:1000"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("healthz request %d: expected status 200, got %d", i+1, res.Code)
		}
	}
}

func TestRateLimit_DisabledTierPassesThrough(t *testing.T) {
	// Admin tier defaults to 0, which disables limiting entirely.
	handler := RateLimit(config.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
		req.RemoteAddr = "10.0.0.4:1000"
		req = req.WithContext(WithRateLimitTier(req.Context(), TierAdmin))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, res.Code)
		}
	}
}
