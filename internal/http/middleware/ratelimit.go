package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	throttleSweepEvery = 5 * time.Minute
	throttleStaleAfter = 10 * time.Minute
)

// Throttle applies a per-client token bucket. Anonymous chat traffic has no
// account standing to enforce against, so the client IP is the identity.
type Throttle struct {
	mu        sync.Mutex
	clients   map[string]*tokenBucket
	rate      float64
	burst     float64
	now       func() time.Time
	lastSweep time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// NewThrottle allows rate requests per second per client with burst headroom.
func NewThrottle(rate float64, burst int) *Throttle {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow reports whether one more request from key fits under the limit.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweepLocked(now)

	b, ok := t.clients[key]
	if !ok {
		b = &tokenBucket{tokens: t.burst, seen: now}
		t.clients[key] = b
	} else {
		b.tokens += now.Sub(b.seen).Seconds() * t.rate
		if b.tokens > t.burst {
			b.tokens = t.burst
		}
		b.seen = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepLocked drops clients idle past the stale window. Runs inline on the
// request path at most once per sweep interval, so no background goroutine
// is needed.
func (t *Throttle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < throttleSweepEvery {
		return
	}
	t.lastSweep = now
	cutoff := now.Add(-throttleStaleAfter)
	for key, b := range t.clients {
		if b.seen.Before(cutoff) {
			delete(t.clients, key)
		}
	}
}

// clientKey prefers the X-Real-Ip header set by chi's RealIP middleware over
// the raw remote address.
func clientKey(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects clients exceeding the configured rate with
// 429 Too Many Requests.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	throttle := NewThrottle(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !throttle.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
