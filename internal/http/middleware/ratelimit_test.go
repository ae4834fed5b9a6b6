package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestThrottleBurstThenRefill(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	throttle := NewThrottle(1, 2)
	throttle.now = func() time.Time { return now }

	if !throttle.Allow("1.2.3.4") || !throttle.Allow("1.2.3.4") {
		t.Fatalf("expected the burst to be allowed")
	}
	if throttle.Allow("1.2.3.4") {
		t.Fatalf("expected the request past the burst to be denied")
	}

	// One second at 1 req/s buys exactly one more token.
	now = now.Add(time.Second)
	if !throttle.Allow("1.2.3.4") {
		t.Fatalf("expected refill after one second")
	}
	if throttle.Allow("1.2.3.4") {
		t.Fatalf("expected only one token to have refilled")
	}
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	throttle := NewThrottle(1, 1)

	if !throttle.Allow("1.2.3.4") {
		t.Fatalf("expected first client to be allowed")
	}
	if throttle.Allow("1.2.3.4") {
		t.Fatalf("expected first client to be throttled")
	}
	if !throttle.Allow("5.6.7.8") {
		t.Fatalf("expected second client to have its own bucket")
	}
}

func TestThrottleSweepsStaleClients(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	throttle := NewThrottle(1, 1)
	throttle.now = func() time.Time { return now }

	throttle.Allow("1.2.3.4")
	if len(throttle.clients) != 1 {
		t.Fatalf("expected one tracked client, got %d", len(throttle.clients))
	}

	now = now.Add(throttleStaleAfter + throttleSweepEvery)
	throttle.Allow("5.6.7.8")
	if _, ok := throttle.clients["1.2.3.4"]; ok {
		t.Fatalf("expected the idle client to be evicted")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RateLimit(1, 1)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	if rec := send("1.2.3.4"); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := send("1.2.3.4")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header on the throttled response")
	}

	// A different client IP is not affected by the first one's bucket.
	if rec := send("5.6.7.8"); rec.Code != http.StatusOK {
		t.Fatalf("expected an unrelated client to pass, got %d", rec.Code)
	}
}
