package session

import "time"

// RateLimiter is a fixed-capacity sliding time-window counter. It is
// owned by the single command-processing goroutine, so it needs no
// locking.
type RateLimiter struct {
	limit  int
	window time.Duration
	hits   []time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records an action unless the limit has been reached within the
// rolling window.
func (r *RateLimiter) Allow() bool {
	now := r.now()
	cutoff := now.Add(-r.window)

	kept := r.hits[:0]
	for _, hit := range r.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	r.hits = kept

	if len(r.hits) >= r.limit {
		return false
	}
	r.hits = append(r.hits, now)
	return true
}
