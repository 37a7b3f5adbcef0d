package bot

import (
	"sync"
	"time"
)

// RateLimiter is a per-user sliding-window limiter guarding the AI path.
// The clock is injected so tests control time instead of sleeping.
type RateLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing max events per window per key.
// A nil now falls back to time.Now.
func NewRateLimiter(max int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		window: window,
		max:    max,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records one event for the key and reports whether it stays within
// the window limit. A zero or negative max disables limiting.
func (r *RateLimiter) Allow(key string) bool {
	if r.max <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	r.sweep(now, cutoff)

	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	r.hits[key] = kept

	return len(kept) <= r.max
}

// sweep drops keys whose hits have all aged out, at most once per window,
// so idle users do not pin map entries forever. Caller must hold mu.
func (r *RateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for key, times := range r.hits {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(r.hits, key)
		}
	}
}
