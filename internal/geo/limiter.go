package geo

import (
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultBudget = 45
)

// WindowLimiter caps lookups per fixed window. The window restarts on the
// first call made at least one window after the previous start, so bursts of
// up to 2x budget are possible around a boundary.
type WindowLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	budget      int
	count       int
	windowStart time.Time
	now         func() time.Time
}

func NewWindowLimiter(budget int, window time.Duration) *WindowLimiter {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &WindowLimiter{
		window: window,
		budget: budget,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Allow consumes one unit of budget if any is left in the current window.
func (l *WindowLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.budget {
		return false
	}
	l.count++
	return true
}

// Remaining returns the budget left in the current window.
func (l *WindowLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now().Sub(l.windowStart) >= l.window {
		return l.budget
	}
	return max(l.budget-l.count, 0)
}

// SetLimits changes the budget and window in place. The running window and
// its count are kept.
func (l *WindowLimiter) SetLimits(budget int, window time.Duration) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l.mu.Lock()
	l.budget = budget
	l.window = window
	l.mu.Unlock()
}
