package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, rate float64, burst int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(rate, burst)
	l.now = clock.Now
	t.Cleanup(l.Stop)
	return l, clock
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr, forwarded string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/random", nil)
	req.RemoteAddr = remoteAddr
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestsWithinBurstAreAllowed(t *testing.T) {
	burst := 5
	limiter, _ := newTestLimiter(t, 1, burst)

	for i := 0; i < burst; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d within burst of %d should be allowed", i+1, burst)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request exceeding burst should be denied")
	}
}

func TestTokensReplenishOverTime(t *testing.T) {
	limiter, clock := newTestLimiter(t, 2, 1)

	limiter.allow("192.168.1.1")
	if limiter.allow("192.168.1.1") {
		t.Fatal("expected request to be denied after exhausting burst")
	}

	clock.Advance(600 * time.Millisecond)

	if !limiter.allow("192.168.1.1") {
		t.Error("expected request to be allowed after token replenishment")
	}
}

func TestTokensDoNotExceedBurst(t *testing.T) {
	burst := 3
	limiter, clock := newTestLimiter(t, 100, burst)

	limiter.allow("192.168.1.1")
	clock.Advance(time.Hour)

	allowed := 0
	for i := 0; i < burst+2; i++ {
		if limiter.allow("192.168.1.1") {
			allowed++
		}
	}
	if allowed != burst {
		t.Errorf("expected %d requests allowed, got %d", burst, allowed)
	}
}

func TestDifferentClientsHaveIndependentLimits(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)

	limiter.allow("10.0.0.1")
	if limiter.allow("10.0.0.1") {
		t.Error("expected second request from first client to be denied")
	}
	if !limiter.allow("10.0.0.2") {
		t.Error("expected first request from second client to be allowed")
	}
}

func TestEvictIdleRemovesStaleClients(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, 1)

	limiter.allow("10.0.0.1")
	clock.Advance(11 * time.Minute)
	limiter.allow("10.0.0.2")
	limiter.evictIdle()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.clients["10.0.0.1"]; ok {
		t.Error("expected idle client to be evicted")
	}
	if _, ok := limiter.clients["10.0.0.2"]; !ok {
		t.Error("expected active client to be kept")
	}
}

func TestMiddlewareRateLimitsWithJSONError(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0.5, 1)
	handler := limiter.Middleware(okHandler())

	if rec := serve(handler, "192.168.1.1:1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec := serve(handler, "192.168.1.1:2000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same IP on another port, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After=2, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", got)
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "too many requests" {
		t.Errorf("expected error=too many requests, got %q", body.Error)
	}
}

func TestMiddlewareDoesNotCallNextHandlerWhenRateLimited(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)
	callCount := 0

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
	}))

	for i := 0; i < 3; i++ {
		serve(handler, "10.0.0.1:1234", "")
	}

	if callCount != 1 {
		t.Errorf("expected next handler called 1 time, got %d", callCount)
	}
}

func TestMiddlewareKeysOnFirstForwardedHop(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)
	handler := limiter.Middleware(okHandler())

	serve(handler, "10.0.0.99:1234", "203.0.113.50, 10.0.0.99")

	rec := serve(handler, "10.0.0.100:5678", "203.0.113.50")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for same forwarded client, got %d", rec.Code)
	}

	rec = serve(handler, "10.0.0.99:1234", "203.0.113.51")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a different forwarded client, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"RemoteAddrWithPort", "192.168.1.1:12345", "", "192.168.1.1"},
		{"RemoteAddrWithoutPort", "192.168.1.1", "", "192.168.1.1"},
		{"IPv6", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"ForwardedChain", "10.0.0.1:1", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"BlankForwarded", "10.0.0.1:1", " , 10.0.0.2", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
