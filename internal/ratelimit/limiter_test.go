package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`tok-[a-z0-9]{8,24}`)
}

// =============================================================================
// Property: Requests within the burst succeed
// =============================================================================

func testLimiter_WithinBurstAllowed(t *rapid.T) {
	burst := rapid.IntRange(1, 100).Draw(t, "burst")
	l := New(Config{Default: Limit{RPS: 1, Burst: burst}, IdleTTL: time.Hour})
	defer l.Stop()

	key := keyGenerator().Draw(t, "key")
	n := rapid.IntRange(1, burst).Draw(t, "n")
	for i := 0; i < n; i++ {
		if !l.Allow(key) {
			t.Fatalf("request %d of %d should be allowed within burst %d", i+1, n, burst)
		}
	}
}

func TestLimiter_WithinBurstAllowed(t *testing.T) {
	rapid.Check(t, testLimiter_WithinBurstAllowed)
}

func FuzzLimiter_WithinBurstAllowed(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testLimiter_WithinBurstAllowed))
}

// =============================================================================
// Property: The request after an exhausted burst is blocked
// =============================================================================

func testLimiter_ExhaustedBurstBlocked(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	l := New(Config{Default: Limit{RPS: 0.001, Burst: burst}, IdleTTL: time.Hour})
	defer l.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		l.Allow(key)
	}
	if l.Allow(key) {
		t.Fatalf("request beyond burst %d should be blocked", burst)
	}
	if l.Remaining(key) != 0 {
		t.Fatalf("remaining should be 0 after exhaustion, got %d", l.Remaining(key))
	}
}

func TestLimiter_ExhaustedBurstBlocked(t *testing.T) {
	rapid.Check(t, testLimiter_ExhaustedBurstBlocked)
}

func FuzzLimiter_ExhaustedBurstBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testLimiter_ExhaustedBurstBlocked))
}

// =============================================================================
// Property: Keys are independent; overrides apply only to their key
// =============================================================================

func testLimiter_KeyIndependence(t *rapid.T) {
	slow := keyGenerator().Draw(t, "slow")
	fast := keyGenerator().Filter(func(k string) bool { return k != slow }).Draw(t, "fast")

	l := New(Config{
		Default:   Limit{RPS: 0.001, Burst: 50},
		Overrides: map[string]Limit{slow: {RPS: 0.001, Burst: 1}},
		IdleTTL:   time.Hour,
	})
	defer l.Stop()

	if !l.Allow(slow) {
		t.Fatal("first request for throttled key should pass")
	}
	if l.Allow(slow) {
		t.Fatal("second request for throttled key should be blocked")
	}
	for i := 0; i < 50; i++ {
		if !l.Allow(fast) {
			t.Fatalf("default key request %d blocked by another key's budget", i+1)
		}
	}
}

func TestLimiter_KeyIndependence(t *testing.T) {
	rapid.Check(t, testLimiter_KeyIndependence)
}

func FuzzLimiter_KeyIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testLimiter_KeyIndependence))
}

// =============================================================================
// Sweep removes idle keys and keeps active ones
// =============================================================================

func TestLimiter_SweepDropsIdleKeys(t *testing.T) {
	l := New(Config{Default: Limit{RPS: 10, Burst: 10}, IdleTTL: time.Minute})
	defer l.Stop()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	l.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		clock = clock.Add(d)
		mu.Unlock()
	}

	l.Allow("idle")
	l.Allow("active")
	advance(45 * time.Second)
	l.Allow("active")
	advance(30 * time.Second)

	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("expected 1 idle key removed, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("active key should survive sweep, len=%d", l.Len())
	}
}

func TestLimiter_ConcurrentAccessCountsEveryRequest(t *testing.T) {
	l := New(Config{Default: Limit{RPS: 1000, Burst: 2000}, IdleTTL: time.Hour})
	defer l.Stop()

	const goroutines, perGoroutine = 16, 40
	keys := []string{"a", "b", "c", "d", "e"}
	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if l.Allow(keys[(g+i)%len(keys)]) {
					allowed.Add(1)
				} else {
					denied.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := allowed.Load() + denied.Load(); got != goroutines*perGoroutine {
		t.Fatalf("lost requests: got %d want %d", got, goroutines*perGoroutine)
	}
	if l.Len() != len(keys) {
		t.Fatalf("expected %d tracked keys, got %d", len(keys), l.Len())
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := New(Config{Default: Limit{RPS: 1, Burst: 1}, IdleTTL: time.Millisecond})
	done := make(chan struct{})
	go func() {
		l.Stop()
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_Returns429JSON(t *testing.T) {
	l := New(Config{Default: Limit{RPS: 0.001, Burst: 1}, IdleTTL: time.Hour})
	defer l.Stop()

	var calls int
	handler := Middleware(l, func(r *http.Request) string {
		return r.Header.Get("Authorization")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("Bearer a"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	rec := do("Bearer a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("missing Retry-After, headers=%v", rec.Header())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["code"] != "rate_limited" {
		t.Fatalf("unexpected 429 body %q: %v", rec.Body.String(), err)
	}

	for i := 0; i < 5; i++ {
		if rec := do(""); rec.Code != http.StatusNoContent {
			t.Fatalf("keyless requests bypass the limiter, got %d", rec.Code)
		}
	}
	if calls != 6 {
		t.Fatalf("expected 6 handler calls, got %d", calls)
	}
}
