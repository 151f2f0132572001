package send

import (
	"sync"
	"time"
)

// RateLimiter caps the number of sends inside a sliding window. It
// tracks send timestamps and discards those that have aged out, so the
// limit applies to the trailing window rather than calendar hours.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing limit sends per hour. A
// non-positive limit disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: time.Hour,
		now:    time.Now,
	}
}

// Allow reports whether another send fits in the current window.
func (r *RateLimiter) Allow() bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expire()
	return len(r.events) < r.limit
}

// Record registers a completed send.
func (r *RateLimiter) Record() {
	if r.limit <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expire()
	r.events = append(r.events, r.now())
}

// Remaining returns how many sends are left in the current window.
func (r *RateLimiter) Remaining() int {
	if r.limit <= 0 {
		return -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expire()
	return r.limit - len(r.events)
}

// expire drops events older than the window. Callers hold the lock.
func (r *RateLimiter) expire() {
	cutoff := r.now().Add(-r.window)
	kept := r.events[:0]
	for _, t := range r.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.events = kept
}
