package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
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

// newTestLimiter creates a Limiter wired to the given fake clock.
func newTestLimiter(rate int, window time.Duration, clock *fakeClock) *Limiter {
	l := New(rate, window)
	l.now = clock.Now
	return l
}

func TestAllowBasic(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !l.Allow("sess-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if l.Allow("sess-1") {
		t.Fatal("4th request should be denied")
	}
}

func TestAllowDifferentSessions(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(1, time.Minute, clock)

	if !l.Allow("a") {
		t.Fatal("first request for session 'a' should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("second request for session 'a' should be denied")
	}
	// Different session should have its own bucket.
	if !l.Allow("b") {
		t.Fatal("first request for session 'b' should be allowed")
	}
}

func TestTokenRefill(t *testing.T) {
	clock := newFakeClock(time.Now())
	// 60 tokens per minute = 1 token per second.
	l := newTestLimiter(60, time.Minute, clock)

	// Exhaust all tokens.
	for i := 0; i < 60; i++ {
		l.Allow("k")
	}
	if l.Allow("k") {
		t.Fatal("should be denied after exhausting tokens")
	}

	// Advance 1 second -> 1 token refilled.
	clock.Advance(1 * time.Second)
	if !l.Allow("k") {
		t.Fatal("should be allowed after 1 second refill")
	}
	if l.Allow("k") {
		t.Fatal("should be denied again after consuming refilled token")
	}

	// Advance 5 seconds -> 5 tokens.
	clock.Advance(5 * time.Second)
	for i := 0; i < 5; i++ {
		if !l.Allow("k") {
			t.Fatalf("request %d should be allowed after 5s refill", i+1)
		}
	}
	if l.Allow("k") {
		t.Fatal("should be denied after consuming 5 refilled tokens")
	}
}

func TestTokenRefillCap(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	// Use 2 tokens.
	l.Allow("k")
	l.Allow("k")

	// Advance a very long time; tokens should cap at rate.
	clock.Advance(10 * time.Minute)

	_, remaining, _ := l.Status("k")
	if remaining != 5 {
		t.Fatalf("remaining should cap at 5, got %d", remaining)
	}
}

func TestConcurrentAccess(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(100, time.Minute, clock)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent")
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}

	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

func TestStatus(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(10, time.Minute, clock)

	// Fresh bucket.
	limit, remaining, _ := l.Status("s")
	if limit != 10 {
		t.Fatalf("expected limit 10, got %d", limit)
	}
	if remaining != 10 {
		t.Fatalf("expected remaining 10, got %d", remaining)
	}

	// Consume 3 tokens.
	l.Allow("s")
	l.Allow("s")
	l.Allow("s")

	limit, remaining, resetAt := l.Status("s")
	if limit != 10 {
		t.Fatalf("expected limit 10, got %d", limit)
	}
	if remaining != 7 {
		t.Fatalf("expected remaining 7, got %d", remaining)
	}

	// Reset time should be in the future (about 18 seconds for 3 tokens at
	// 10/min = 1 token per 6 seconds).
	now := clock.Now()
	if !resetAt.After(now) {
		t.Fatalf("resetAt %v should be after now %v", resetAt, now)
	}
}

func TestStatusFullBucketResetIsNow(t *testing.T) {
	clock := newFakeClock(time.Now())
	l := newTestLimiter(5, time.Minute, clock)

	_, _, resetAt := l.Status("full")
	now := clock.Now()

	if resetAt != now {
		t.Fatalf("full bucket resetAt should equal now, got diff %v", resetAt.Sub(now))
	}
}

func TestMiddleware(t *testing.T) {
	l := New(1, time.Minute)
	rejected := 0

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	keyFor := func(r *http.Request) string { return r.Header.Get("X-Test-Session") }
	handler := Middleware(l, keyFor, func() { rejected++ })(inner)

	do := func(session string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
		if session != "" {
			req.Header.Set("X-Test-Session", session)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("s1"); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	rec := do("s1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rejected != 1 {
		t.Errorf("expected 1 rejection callback, got %d", rejected)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("expected X-RateLimit-Limit 1, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	// Another session has its own bucket.
	if rec := do("s2"); rec.Code != http.StatusOK {
		t.Fatalf("other session should pass, got %d", rec.Code)
	}

	// No session key: limiting is skipped.
	if rec := do(""); rec.Code != http.StatusOK {
		t.Fatalf("keyless request should pass, got %d", rec.Code)
	}
	if rec := do(""); rec.Code != http.StatusOK {
		t.Fatalf("keyless requests must never be limited, got %d", rec.Code)
	}
}
