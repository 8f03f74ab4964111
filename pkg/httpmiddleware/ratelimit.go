package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig bounds request throughput per caller.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max int
	// Window is the averaging period for Max.
	Window time.Duration
}

// bucket holds one caller's remaining budget. It refills continuously at
// Max tokens per Window and never exceeds Max.
type bucket struct {
	tokens float64
	seen   time.Time
}

type limiter struct {
	max    float64
	window time.Duration

	mu       sync.Mutex
	visitors map[string]*bucket
}

// verdict is the outcome of spending a token.
type verdict struct {
	allowed    bool
	remaining  int
	resetAt    time.Time
	retryAfter time.Duration
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		max:      float64(cfg.Max),
		window:   cfg.Window,
		visitors: make(map[string]*bucket),
	}
}

// take spends one token for key, creating a full bucket on first sight.
func (l *limiter) take(key string, now time.Time) verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.visitors[key]
	if !ok {
		b = &bucket{tokens: l.max, seen: now}
		l.visitors[key] = b
	}

	rate := l.max / l.window.Seconds()
	b.tokens = math.Min(l.max, b.tokens+now.Sub(b.seen).Seconds()*rate)
	b.seen = now

	if b.tokens < 1 {
		return verdict{
			remaining:  0,
			resetAt:    now.Add(durationFor(l.max-b.tokens, rate)),
			retryAfter: durationFor(1-b.tokens, rate),
		}
	}
	b.tokens--
	return verdict{
		allowed:   true,
		remaining: int(b.tokens),
		resetAt:   now.Add(durationFor(l.max-b.tokens, rate)),
	}
}

// durationFor converts a token deficit into wall time at the refill rate.
func durationFor(tokens, perSecond float64) time.Duration {
	return time.Duration(tokens / perSecond * float64(time.Second))
}

// sweep drops buckets idle long enough to have refilled completely.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.visitors {
		if now.Sub(b.seen) > l.window {
			delete(l.visitors, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-caller token bucket of
// cfg.Max requests per cfg.Window. Authenticated traffic is keyed by its API
// key, anything else by client IP. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset; a rejected request gets a
// 429 with the standard error envelope and a Retry-After header.
//
// Stale buckets are only evicted by RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitMiddleware(newLimiter(cfg), cfg.Max)
}

// RateLimitWithCleanup is RateLimit plus a background sweep of idle callers
// every two windows. The sweeper exits when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(now)
			}
		}
	}()
	return limitMiddleware(l, cfg.Max)
}

func limitMiddleware(l *limiter, max int) Middleware {
	limit := strconv.Itoa(max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := l.take(callerKey(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(v.resetAt.Unix(), 10))

			if !v.allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(v.retryAfter.Seconds()))))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "rate_limited",
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies the caller: API key first, then the first
// proxy-forwarded address, then the socket address.
func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
