// ABOUTME: Tests for the sliding-window rate limiter.
// ABOUTME: Validates admission, window expiry, wait-time calculation, and concurrent safety.
package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(window time.Duration, maxCalls int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(window, maxCalls)
	l.now = clock.now
	return l, clock
}

func TestLimiterAdmitsUpToCap(t *testing.T) {
	l, _ := newTestLimiter(60*time.Second, 5)

	for i := 0; i < 5; i++ {
		if !l.CanProceed() {
			t.Fatalf("call %d: CanProceed = false, want true", i+1)
		}
		l.RecordCall()
	}

	if l.CanProceed() {
		t.Error("6th call: CanProceed = true, want false")
	}
}

func TestLimiterWindowExpiry(t *testing.T) {
	l, clock := newTestLimiter(60*time.Second, 2)

	l.RecordCall()
	l.RecordCall()
	if l.CanProceed() {
		t.Fatal("at cap: CanProceed = true, want false")
	}

	clock.advance(61 * time.Second)
	if !l.CanProceed() {
		t.Error("after window expiry: CanProceed = false, want true")
	}
}

func TestLimiterWaitTime(t *testing.T) {
	l, clock := newTestLimiter(60*time.Second, 1)

	if got := l.WaitTime(); got != 0 {
		t.Errorf("empty limiter WaitTime = %v, want 0", got)
	}

	l.RecordCall()
	if got := l.WaitTime(); got != 60*time.Second {
		t.Errorf("WaitTime = %v, want 60s", got)
	}

	clock.advance(45 * time.Second)
	if got := l.WaitTime(); got != 15*time.Second {
		t.Errorf("WaitTime after 45s = %v, want 15s", got)
	}

	clock.advance(20 * time.Second)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("WaitTime after expiry = %v, want 0", got)
	}
}

func TestLimiterDefaults(t *testing.T) {
	l := New(0, 0)
	if l.Window() != 60*time.Second {
		t.Errorf("default window = %v, want 60s", l.Window())
	}
	if l.MaxCalls() != 5 {
		t.Errorf("default max calls = %d, want 5", l.MaxCalls())
	}
}

func TestLimiterConcurrentAdmission(t *testing.T) {
	// With 50 goroutines racing check-then-record, the recorded call count
	// must never be silently corrupted; the slice length stays consistent.
	l, _ := newTestLimiter(time.Hour, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.CanProceed() {
					l.RecordCall()
				}
				l.WaitTime()
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	n := len(l.calls)
	l.mu.Unlock()
	if n != 500 {
		t.Errorf("recorded calls = %d, want 500", n)
	}
}
