package ratelimit

import (
	"context"
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

func newTestWindow(limit int, window time.Duration, clock *fakeClock) *Window {
	w := NewWindow(limit, window)
	w.now = clock.Now
	return w
}

func mustAdmit(t *testing.T, w *Window, agentID string, limit int) bool {
	t.Helper()
	ok, err := w.Admit(context.Background(), agentID, limit)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	return ok
}

func TestAdmitBasic(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if !mustAdmit(t, w, "agent-1", 3) {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	if mustAdmit(t, w, "agent-1", 3) {
		t.Fatal("4th request within the window should be rejected")
	}
}

func TestRejectionNotRecorded(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	mustAdmit(t, w, "a", 1)
	// Rejected calls must not consume future capacity.
	for i := 0; i < 5; i++ {
		mustAdmit(t, w, "a", 1)
	}

	clock.Advance(61 * time.Second)
	if !mustAdmit(t, w, "a", 1) {
		t.Fatal("request after window expiry should be admitted")
	}
}

func TestAdmitDifferentAgents(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	if !mustAdmit(t, w, "a", 1) {
		t.Fatal("first request for agent a should be admitted")
	}
	if mustAdmit(t, w, "a", 1) {
		t.Fatal("second request for agent a should be rejected")
	}
	// Different agent has its own window.
	if !mustAdmit(t, w, "b", 1) {
		t.Fatal("first request for agent b should be admitted")
	}
}

func TestLazyEviction(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	for i := 0; i < 3; i++ {
		mustAdmit(t, w, "k", 3)
	}
	if mustAdmit(t, w, "k", 3) {
		t.Fatal("should be rejected with a full window")
	}

	// 30s later the original entries are still visible.
	clock.Advance(30 * time.Second)
	if mustAdmit(t, w, "k", 3) {
		t.Fatal("should still be rejected at 30s")
	}

	// 31s more and they fall out of the trailing window.
	clock.Advance(31 * time.Second)
	if !mustAdmit(t, w, "k", 3) {
		t.Fatal("should be admitted after entries expire")
	}
}

func TestBoundaryBurst(t *testing.T) {
	// The trailing window admits up to 2x the nominal rate across a window
	// boundary. That is the documented baseline behavior.
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	for i := 0; i < 5; i++ {
		if !mustAdmit(t, w, "k", 5) {
			t.Fatalf("burst request %d should be admitted", i+1)
		}
	}

	clock.Advance(61 * time.Second)

	for i := 0; i < 5; i++ {
		if !mustAdmit(t, w, "k", 5) {
			t.Fatalf("post-boundary request %d should be admitted", i+1)
		}
	}
}

func TestDefaultLimitFallback(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(2, time.Minute, clock)

	if !mustAdmit(t, w, "k", 0) {
		t.Fatal("first request should use default limit")
	}
	if !mustAdmit(t, w, "k", 0) {
		t.Fatal("second request should use default limit")
	}
	if mustAdmit(t, w, "k", 0) {
		t.Fatal("third request should exceed default limit")
	}
}

func TestConcurrentAdmit(t *testing.T) {
	clock := newFakeClock(time.Now())
	w := newTestWindow(60, time.Minute, clock)

	var wg sync.WaitGroup
	admitted := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := w.Admit(context.Background(), "concurrent", 100)
			admitted <- ok
		}()
	}

	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}

	if count != 100 {
		t.Fatalf("expected exactly 100 admitted, got %d", count)
	}
}
