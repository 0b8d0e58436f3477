// ABOUTME: Sliding-window admission control for calls to the reasoning backend.
// ABOUTME: Thread-safe; shared process-wide so concurrent queries cannot jointly exceed the cap.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits calls while fewer than MaxCalls have been recorded inside
// the trailing Window. It never blocks and never queues: callers that are
// denied must abort and surface the denial to their own caller.
type Limiter struct {
	window   time.Duration
	maxCalls int

	mu    sync.Mutex
	calls []time.Time // timestamps of admitted calls, oldest first
	now   func() time.Time
}

// New creates a Limiter with the given window and call cap.
// A window <= 0 defaults to 60s; maxCalls <= 0 defaults to 5.
func New(window time.Duration, maxCalls int) *Limiter {
	if window <= 0 {
		window = 60 * time.Second
	}
	if maxCalls <= 0 {
		maxCalls = 5
	}
	return &Limiter{
		window:   window,
		maxCalls: maxCalls,
		calls:    make([]time.Time, 0, maxCalls),
		now:      time.Now,
	}
}

// CanProceed reports whether a new call would be admitted right now.
// It does not record anything; pair with RecordCall after the call is issued.
func (l *Limiter) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.calls) < l.maxCalls
}

// RecordCall records an admitted call at the current time.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.calls = append(l.calls, now)
}

// WaitTime returns how long until the next call would be admitted.
// Zero means a call can proceed immediately.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.calls) < l.maxCalls {
		return 0
	}
	// The oldest in-window call ages out first.
	wait := l.calls[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Window returns the configured sliding-window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// MaxCalls returns the configured per-window call cap.
func (l *Limiter) MaxCalls() int { return l.maxCalls }

// prune drops timestamps older than the window. Caller must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
