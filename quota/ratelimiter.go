package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiterStats is a snapshot of the sliding window.
type RateLimiterStats struct {
	RequestsInWindow int   `json:"requestsInWindow"`
	MaxRequests      int   `json:"maxRequests"`
	WindowMs         int64 `json:"windowMs"`
}

// RateLimiter admits at most maxRequests per sliding window. Requests are
// never rejected, only delayed.
type RateLimiter struct {
	mu          sync.Mutex
	requests    []time.Time
	maxRequests int
	window      time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewRateLimiter creates a limiter for maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultConfig.MaxRequests
	}
	if window <= 0 {
		window = DefaultConfig.Window
	}
	return &RateLimiter{
		requests:    make([]time.Time, 0, maxRequests),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		logger:      slog.Default(),
	}
}

// Acquire blocks until a slot is free in the window. It only fails when ctx
// ends while waiting.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		l.logger.Warn("Rate limit reached, waiting", slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records a request and returns 0, or returns how long until the
// oldest request leaves the window.
func (l *RateLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.requests) < l.maxRequests {
		l.requests = append(l.requests, now)
		return 0
	}
	return l.window - now.Sub(l.requests[0])
}

// prune drops timestamps that are outside the window. Caller must hold lock.
func (l *RateLimiter) prune(now time.Time) {
	keep := l.requests[:0]
	for _, t := range l.requests {
		if now.Sub(t) < l.window {
			keep = append(keep, t)
		}
	}
	l.requests = keep
}

// Stats returns current window occupancy and the configured limits.
func (l *RateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	inWindow := 0
	for _, t := range l.requests {
		if now.Sub(t) < l.window {
			inWindow++
		}
	}
	return RateLimiterStats{
		RequestsInWindow: inWindow,
		MaxRequests:      l.maxRequests,
		WindowMs:         l.window.Milliseconds(),
	}
}
