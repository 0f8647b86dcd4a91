// Package quota governs calls to the rate-limited live status provider:
// a sliding-window rate limiter, a quota circuit breaker with exponential
// backoff, and a client that tracks quota units spent per operation.
package quota

import "time"

// Quota units charged by the provider per call.
const (
	CostChannelsList = 1   // channels.list, resolve a handle
	CostVideosList   = 1   // videos.list, per page of up to 50 ids
	CostSearchList   = 100 // search.list, discover a live video

	// VideosPageSize is the most ids videos.list accepts per call.
	VideosPageSize = 50
)

// Config holds the governance settings.
type Config struct {
	// MaxRequests admitted per Window by the rate limiter.
	MaxRequests int
	Window      time.Duration
	// InitialBackoff is how long the circuit stays open on the first trip.
	InitialBackoff time.Duration
	// MaxBackoff caps the open duration.
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig provides defaults: 100 requests per minute, circuit backoff of
// 10 minutes doubling up to one hour.
var DefaultConfig = &Config{
	MaxRequests:       100,
	Window:            time.Minute,
	InitialBackoff:    10 * time.Minute,
	MaxBackoff:        time.Hour,
	BackoffMultiplier: 2,
}
