package relay

import "time"

// rateLimiter bounds chat messages per session to limit per minute.
// A zero or negative limit disables limiting. Not safe for concurrent use;
// each session owns its limiter and calls it from its own event loop.
type rateLimiter struct {
	limit       int
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.count = 0
	}
	r.count++
	return r.count <= r.limit
}
