package resilience

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window rate limiter. It keeps the timestamps of
// admitted requests and refuses new ones while the window holds max entries.
//
// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	admitted []time.Time
}

// NewRateLimiter creates a limiter admitting at most max requests per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{max: max, window: window}
}

// Allow reports whether a request may proceed now, recording it if so.
// Admissions older than the window no longer count against the limit.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)
	keep := rl.admitted[:0]
	for _, ts := range rl.admitted {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	rl.admitted = keep

	if len(rl.admitted) >= rl.max {
		return false
	}
	rl.admitted = append(rl.admitted, now)
	return true
}
