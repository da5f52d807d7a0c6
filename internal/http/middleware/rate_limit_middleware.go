package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/timekeeper-hq/authcore/internal/http/response"
	"github.com/timekeeper-hq/authcore/internal/observability"
	"github.com/timekeeper-hq/authcore/internal/ratelimit"
)

// FailureMode decides what happens when the limiter backend is down.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// RateLimiter enforces an IP window and, when a username can be extracted
// from the request, an independent per-user window. A request must clear
// both; a full window denies before the attempt reaches the handler.
type RateLimiter struct {
	limiter     ratelimit.Limiter
	ipPolicy    ratelimit.Policy
	userPolicy  ratelimit.Policy
	mode        FailureMode
	userKeyFunc func(r *http.Request) string
}

func NewRateLimiter(limiter ratelimit.Limiter, ipPolicy, userPolicy ratelimit.Policy, mode FailureMode, userKeyFunc func(r *http.Request) string) *RateLimiter {
	return &RateLimiter{
		limiter:     limiter,
		ipPolicy:    ipPolicy,
		userPolicy:  userPolicy,
		mode:        mode,
		userKeyFunc: userKeyFunc,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.check(w, r, "ip", "ip:"+ClientIP(r), rl.ipPolicy) {
				return
			}
			if rl.userKeyFunc != nil {
				if user := rl.userKeyFunc(r); user != "" {
					if !rl.check(w, r, "user", "user:"+user, rl.userPolicy) {
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check counts the request against one window. It writes the deny response
// itself and reports whether the caller may proceed.
func (rl *RateLimiter) check(w http.ResponseWriter, r *http.Request, scope, key string, policy ratelimit.Policy) bool {
	decision, err := rl.limiter.Allow(r.Context(), key, policy)
	if err != nil {
		observability.RecordRateLimitDecision(r.Context(), scope, "backend_error")
		if rl.mode == FailOpen {
			slog.WarnContext(r.Context(), "rate limiter backend unavailable, allowing request",
				"scope", scope, "error", err.Error())
			return true
		}
		writeRateLimitHeaders(w.Header(), policy.Limit, 0, time.Now().Add(policy.Window))
		w.Header().Set("Retry-After", retryAfterHeader(policy.Window))
		response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return false
	}
	writeRateLimitHeaders(w.Header(), policy.Limit, decision.Remaining, decision.ResetAt)
	if !decision.Allowed {
		observability.RecordRateLimitDecision(r.Context(), scope, "deny")
		w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
		response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return false
	}
	observability.RecordRateLimitDecision(r.Context(), scope, "allow")
	return true
}

// ClientIP resolves the caller address, trusting the first hop of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	if remaining < 0 {
		remaining = 0
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}
