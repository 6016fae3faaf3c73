// Package ratelimit implements fixed-window request counting keyed by
// scope: the shared "system" scope plus one scope per caller key.
package ratelimit

import (
	"sync"
	"time"
)

// SystemScope is the shared scope checked before any per-caller scope.
const SystemScope = "system"

// Window is the fixed counting interval length.
const Window = 60 * time.Second

// Result is the outcome of one check.
type Result struct {
	Allowed bool
	// RetryAfter is the whole seconds until the window resets, rounded up.
	// Only set on rejection.
	RetryAfter int
	// ResetAt is when the scope's window resets.
	ResetAt time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter holds the in-memory windows. Windows are reset lazily on access;
// Sweep only bounds memory and never affects outcomes.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check counts one request against the scope. A missing or expired window
// starts fresh with count 1 and is always allowed; otherwise the request is
// allowed while the count is below limit.
func (l *Limiter) Check(scope string, limit int) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[scope]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(Window)}
		l.windows[scope] = w
		return Result{Allowed: true, ResetAt: w.resetAt}
	}

	if w.count >= limit {
		retry := int((w.resetAt.Sub(now) + time.Second - 1) / time.Second)
		return Result{Allowed: false, RetryAfter: retry, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, ResetAt: w.resetAt}
}

// Sweep deletes windows whose reset time has already passed and reports how
// many were removed. Expired windows are treated as absent on next access
// regardless, so this is garbage collection only.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for scope, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, scope)
			removed++
		}
	}
	return removed
}
