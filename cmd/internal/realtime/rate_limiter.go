package realtime

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-connection token bucket: events per window, with the
// full window's worth available as burst.
type RateLimiter struct {
	l *rate.Limiter
}

// NewRateLimiter falls back to the package defaults when inputs are invalid.
func NewRateLimiter(events int, window time.Duration) *RateLimiter {
	if events <= 0 {
		events = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{l: rate.NewLimiter(rate.Every(window/time.Duration(events)), events)}
}

// Allow reports whether an event at now is permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	return r.l.AllowN(now, 1)
}
