package tracking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleIdleTTL    = 10 * time.Minute
	throttleSweepEvery = time.Minute
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a token bucket per source IP. A nil *Throttle allows
// everything.
type Throttle struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*throttleEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewThrottle returns nil when perSecond is not positive.
func NewThrottle(perSecond float64, burst int) *Throttle {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*throttleEntry),
		now:     time.Now,
	}
}

func (t *Throttle) Allow(ip string) bool {
	if t == nil {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) >= throttleSweepEvery {
		for key, entry := range t.entries {
			if now.Sub(entry.lastSeen) > throttleIdleTTL {
				delete(t.entries, key)
			}
		}
		t.lastSweep = now
	}

	entry, ok := t.entries[ip]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}
