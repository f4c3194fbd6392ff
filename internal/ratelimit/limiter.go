// Package ratelimit throttles write requests per client address.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow = 15 * time.Second
	DefaultQuota  = 8
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter decides whether a request from address may proceed.
type Limiter interface {
	Check(address string) Decision
}

type bucket struct {
	count       int
	windowStart time.Time
}

// FixedWindow counts requests per address in fixed windows. Bursts straddling
// a window boundary can admit up to twice the quota.
type FixedWindow struct {
	mu      sync.Mutex
	window  time.Duration
	quota   int
	now     func() time.Time
	buckets map[string]*bucket
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		l.now = now
	}
}

// NewFixedWindow creates a limiter admitting quota requests per window.
func NewFixedWindow(window time.Duration, quota int, opts ...Option) *FixedWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if quota <= 0 {
		quota = DefaultQuota
	}
	l := &FixedWindow{
		window:  window,
		quota:   quota,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a request from address and reports whether it is admitted.
func (l *FixedWindow) Check(address string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[address]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[address] = &bucket{count: 1, windowStart: now}
		return Decision{Allowed: true, Remaining: l.quota - 1}
	}

	b.count++
	if b.count > l.quota {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: b.windowStart.Add(l.window).Sub(now),
		}
	}
	return Decision{Allowed: true, Remaining: l.quota - b.count}
}

// Prune drops buckets whose window has elapsed and returns how many were removed.
func (l *FixedWindow) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for addr, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked addresses.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

var _ Limiter = (*FixedWindow)(nil)
