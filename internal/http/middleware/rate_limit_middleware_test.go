package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/timekeeper-hq/authcore/internal/ratelimit"
)

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string, ratelimit.Policy) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("backend down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, remoteAddr, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func userHeaderKey(r *http.Request) string {
	return r.Header.Get("X-Test-User")
}

func TestRateLimiterEnforcesIPWindow(t *testing.T) {
	rl := NewRateLimiter(ratelimit.NewMemoryLimiter(),
		ratelimit.Policy{Limit: 2, Window: time.Minute},
		ratelimit.Policy{Limit: 100, Window: time.Minute},
		FailClosed, nil)
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, h, "203.0.113.1:1000", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := doRequest(t, h, "203.0.113.1:1000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on deny")
	}

	// A different address gets its own window.
	if rec := doRequest(t, h, "198.51.100.7:1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("other IP should pass, got %d", rec.Code)
	}
}

func TestRateLimiterEnforcesUserWindowAcrossIPs(t *testing.T) {
	rl := NewRateLimiter(ratelimit.NewMemoryLimiter(),
		ratelimit.Policy{Limit: 100, Window: time.Minute},
		ratelimit.Policy{Limit: 2, Window: time.Minute},
		FailClosed, userHeaderKey)
	h := rl.Middleware()(okHandler())

	if rec := doRequest(t, h, "203.0.113.1:1000", "alice"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doRequest(t, h, "198.51.100.7:1000", "alice"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from second IP, got %d", rec.Code)
	}
	// Third attempt for the same user, third IP: user window is full.
	if rec := doRequest(t, h, "192.0.2.9:1000", "alice"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for user window, got %d", rec.Code)
	}
	// An unrelated user from a fresh IP still passes.
	if rec := doRequest(t, h, "192.0.2.10:1000", "bob"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for other user, got %d", rec.Code)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	policies := []ratelimit.Policy{{Limit: 5, Window: time.Minute}, {Limit: 5, Window: time.Minute}}

	open := NewRateLimiter(erroringLimiter{}, policies[0], policies[1], FailOpen, nil)
	if rec := doRequest(t, open.Middleware()(okHandler()), "203.0.113.1:1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("fail-open should allow, got %d", rec.Code)
	}

	closed := NewRateLimiter(erroringLimiter{}, policies[0], policies[1], FailClosed, nil)
	rec := doRequest(t, closed.Middleware()(okHandler()), "203.0.113.1:1000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fail-closed should deny, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on fail-closed deny")
	}
}

func TestRateLimiterWritesHeaders(t *testing.T) {
	rl := NewRateLimiter(ratelimit.NewMemoryLimiter(),
		ratelimit.Policy{Limit: 5, Window: time.Minute},
		ratelimit.Policy{Limit: 5, Window: time.Minute},
		FailClosed, nil)
	rec := doRequest(t, rl.Middleware()(okHandler()), "203.0.113.1:1000", "")
	if rec.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining header %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected reset header")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4567"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected fallback past garbage header, got %q", got)
	}
}
