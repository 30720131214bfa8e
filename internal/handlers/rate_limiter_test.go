package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSimpleRateLimiterEnforcesLimit(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("third request within the window should be rejected")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("other keys must not be affected")
	}
}

func TestSimpleRateLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })

	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("first request should pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("second request should be rejected")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("request after the window should pass again")
	}
}

func TestSimpleRateLimiterEmptyKeyBucketsAsAnonymous(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })

	if !limiter.Allow("") {
		t.Fatalf("first anonymous request should pass")
	}
	if limiter.Allow("  ") {
		t.Fatalf("blank keys share the anonymous bucket")
	}
}

func TestNewSimpleRateLimiterDisabledOnZeroLimit(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	if limiter := newSimpleRateLimiter(10, 0, nil); limiter != nil {
		t.Fatalf("expected nil limiter for zero window")
	}
}

func TestRateLimitByClientIPMiddleware(t *testing.T) {
	middleware := RateLimitByClientIP(1, time.Minute)
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/public/products", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/public/products", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Fatalf("different client should pass, got %d", rr.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("expected forwarded ip, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("expected remote host, got %q", ip)
	}
}
