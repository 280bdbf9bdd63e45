package ratelimit

import (
	"sync"
	"sync/atomic"
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

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	limiter := NewLimiter(limit, window)
	limiter.Now = clock.Now
	return limiter, clock
}

func TestLimiter_AllowsUpToLimitThenDenies(t *testing.T) {
	limiter, _ := newTestLimiter(3, time.Minute)
	key := "sms:+15551234567"

	for i := 1; i <= 3; i++ {
		if !limiter.CheckLimit(key) {
			t.Fatalf("expected call %d to be allowed", i)
		}
	}
	if limiter.CheckLimit(key) {
		t.Fatalf("expected fourth call to be denied")
	}
	window, ok := limiter.Window(key)
	if !ok {
		t.Fatalf("expected live window")
	}
	if window.Count != 3 {
		t.Fatalf("denied call must not increment, got count %d", window.Count)
	}
	if limiter.Remaining(key) != 0 {
		t.Fatalf("expected no remaining slots, got %d", limiter.Remaining(key))
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	limiter, clock := newTestLimiter(2, time.Minute)
	key := "email:a@example.com"

	limiter.CheckLimit(key)
	limiter.CheckLimit(key)
	if limiter.CheckLimit(key) {
		t.Fatalf("expected limit reached")
	}

	clock.Advance(time.Minute)
	if !limiter.CheckLimit(key) {
		t.Fatalf("expected fresh window after reset")
	}
	window, _ := limiter.Window(key)
	if window.Count != 1 {
		t.Fatalf("expected count reset to 1, got %d", window.Count)
	}
	if want := clock.Now().Add(time.Minute); !window.ResetAt.Equal(want) {
		t.Fatalf("expected reset at %s, got %s", want, window.ResetAt)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)
	if !limiter.CheckLimit("sms:a") || !limiter.CheckLimit("sms:b") {
		t.Fatalf("expected first call per key to be allowed")
	}
	if limiter.CheckLimit("sms:a") {
		t.Fatalf("expected second call on same key to be denied")
	}
	if limiter.Remaining("sms:unknown") != 1 {
		t.Fatalf("expected untouched key to report full limit")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(5, time.Minute)
	limiter.CheckLimit("sms:old")
	clock.Advance(30 * time.Second)
	limiter.CheckLimit("sms:new")
	clock.Advance(40 * time.Second)

	if removed := limiter.Cleanup(); removed != 1 {
		t.Fatalf("expected one expired window removed, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected one live window left, got %d", limiter.Len())
	}
	if _, ok := limiter.Window("sms:old"); ok {
		t.Fatalf("expected old window gone")
	}
}

func TestLimiter_Configure(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)
	if err := limiter.Configure(0, time.Minute); err == nil {
		t.Fatalf("expected invalid limit error")
	}
	if err := limiter.Configure(2, 0); err == nil {
		t.Fatalf("expected invalid window error")
	}
	limiter.CheckLimit("k")
	if err := limiter.Configure(2, time.Minute); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !limiter.CheckLimit("k") {
		t.Fatalf("expected raised limit to apply to open window")
	}
	if limiter.Limit() != 2 {
		t.Fatalf("expected limit 2, got %d", limiter.Limit())
	}
}

func TestLimiter_DefaultsForInvalidConstructorArgs(t *testing.T) {
	limiter := NewLimiter(0, 0)
	if limiter.Limit() != DefaultLimit {
		t.Fatalf("expected default limit, got %d", limiter.Limit())
	}
}

func TestLimiter_ConcurrentCallsNeverExceedLimit(t *testing.T) {
	const limit = 3
	limiter, _ := newTestLimiter(limit, time.Minute)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.CheckLimit("sms:+15550000000") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Fatalf("expected exactly %d allowed calls, got %d", limit, got)
	}
}
