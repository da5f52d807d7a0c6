package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Policy is a fixed-window budget: at most Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) normalize() Policy {
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	return p
}

// Decision is the outcome of counting one request against a key.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter counts a request against a key and decides whether it may
// proceed. Window boundaries are fixed; counters for expired windows read
// as zero rather than being cleared eagerly.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is the single-process fallback used when no Redis endpoint
// is configured.
type MemoryLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	nextCleanup time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows:     make(map[string]*window),
		nextCleanup: time.Now().Add(time.Minute),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	policy = policy.normalize()
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextCleanup) {
		for k, w := range l.windows {
			if now.Sub(w.start) >= 2*policy.Window {
				delete(l.windows, k)
			}
		}
		l.nextCleanup = now.Add(policy.Window)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= policy.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	resetAt := w.start.Add(policy.Window)
	if w.count >= policy.Limit {
		retry := resetAt.Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry, ResetAt: resetAt}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: policy.Limit - w.count, ResetAt: resetAt}, nil
}
