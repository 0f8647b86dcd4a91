package quota

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// VideoStatus is the provider's view of one video.
type VideoStatus struct {
	ID string
	// Found is false when the provider no longer returns the video (deleted or
	// made private after the stream).
	Found bool
	// Live is true only for a broadcast that is on air right now.
	Live bool
}

// Provider is the external live status API. Implementations must return
// *ProviderError for every failure.
type Provider interface {
	ChannelIDForHandle(ctx context.Context, handle string) (string, error)
	Videos(ctx context.Context, ids []string) ([]VideoStatus, error)
	SearchLive(ctx context.Context, channelID string) (string, error)
}

// Metrics is the observability surface of the client.
type Metrics struct {
	QuotaUsed      int64            `json:"quotaUsed"`
	RequestsMade   int64            `json:"requestsMade"`
	IsCircuitOpen  bool             `json:"isCircuitOpen"`
	CircuitTrips   int64            `json:"circuitBreakerTrips"`
	ErrorCount     int64            `json:"errorCount"`
	CurrentBackoff time.Duration    `json:"-"`
	ResetDelay     string           `json:"currentResetDelay"`
	Uptime         float64          `json:"uptime"`
	LastReset      time.Time        `json:"lastReset"`
	RateLimiter    RateLimiterStats `json:"rateLimiter"`
}

// Client wraps a Provider behind the rate limiter, the circuit breaker and
// quota accounting. It is safe for concurrent use.
type Client struct {
	provider Provider
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	quotaUsed int64
	requests  int64
	errors    int64
	startedAt time.Time
	lastReset time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client and its rate limiter. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.limiter.logger = logger
	}
}

// WithClock replaces the time source of the client, its limiter and breaker.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
		c.limiter.now = now
		c.breaker.now = now
	}
}

// NewClient creates a governed client. A nil provider yields a client whose
// every operation returns ErrNotConfigured. A nil cfg uses DefaultConfig.
func NewClient(provider Provider, cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig
	}
	c := &Client{
		provider: provider,
		limiter:  NewRateLimiter(cfg.MaxRequests, cfg.Window),
		breaker:  NewCircuitBreaker(cfg.InitialBackoff, cfg.MaxBackoff, cfg.BackoffMultiplier),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = c.now()
	c.lastReset = c.startedAt
	return c
}

// ResolveHandle resolves a channel handle such as "@name" to its canonical
// channel id. It returns "" when the handle does not exist.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	const op = "resolveHandle"
	if err := c.admit(ctx, op, CostChannelsList); err != nil {
		return "", err
	}
	clean := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	id, err := c.provider.ChannelIDForHandle(ctx, clean)
	if err != nil {
		return "", c.fail(op, err)
	}
	if id == "" {
		c.logger.Warn("Could not resolve handle", slog.String("handle", clean))
	} else {
		c.logger.Info("Resolved handle", slog.String("handle", clean), slog.String("channelId", id))
	}
	return id, nil
}

// ValidateVideos reports the live state of each id, one page of up to
// VideosPageSize ids per call. Ids the provider does not return are reported
// as not found.
func (c *Client) ValidateVideos(ctx context.Context, ids []string) (map[string]VideoStatus, error) {
	const op = "fetchVideos"
	out := make(map[string]VideoStatus, len(ids))
	for start := 0; start < len(ids); start += VideosPageSize {
		page := ids[start:min(start+VideosPageSize, len(ids))]
		if err := c.admit(ctx, op, CostVideosList); err != nil {
			return nil, err
		}
		statuses, err := c.provider.Videos(ctx, page)
		if err != nil {
			return nil, c.fail(op, err)
		}
		for _, id := range page {
			out[id] = VideoStatus{ID: id}
		}
		for _, s := range statuses {
			if _, asked := out[s.ID]; asked {
				out[s.ID] = s
			}
		}
	}
	return out, nil
}

// SearchLiveVideo looks for a broadcast that is live on channelID right now.
// This is the expensive call; it returns "" when the channel is not live.
func (c *Client) SearchLiveVideo(ctx context.Context, channelID string) (string, error) {
	const op = "searchLiveVideo"
	if err := c.admit(ctx, op, CostSearchList); err != nil {
		return "", err
	}
	id, err := c.provider.SearchLive(ctx, channelID)
	if err != nil {
		return "", c.fail(op, err)
	}
	if id != "" {
		c.logger.Info("Found live video", slog.String("channelId", channelID), slog.String("videoId", id))
	} else {
		c.logger.Debug("No live video", slog.String("channelId", channelID))
	}
	return id, nil
}

// CircuitOpen reports whether provider calls are currently blocked.
func (c *Client) CircuitOpen() bool {
	return c.breaker.IsOpen()
}

// CloseCircuit manually closes the breaker and resets its backoff.
func (c *Client) CloseCircuit() {
	c.breaker.Close()
	c.logger.Info("Circuit breaker manually closed")
}

// ResetMetrics zeroes the quota counters, typically when the provider's daily
// quota rolls over. Trip count and breaker state are kept.
func (c *Client) ResetMetrics() {
	c.mu.Lock()
	c.quotaUsed = 0
	c.requests = 0
	c.errors = 0
	c.lastReset = c.now()
	c.mu.Unlock()
	c.logger.Info("Quota metrics reset")
}

// Metrics returns a snapshot of quota usage and governance state.
func (c *Client) Metrics() Metrics {
	breaker := c.breaker.State()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Metrics{
		QuotaUsed:      c.quotaUsed,
		RequestsMade:   c.requests,
		IsCircuitOpen:  breaker.Open,
		CircuitTrips:   breaker.Trips,
		ErrorCount:     c.errors,
		CurrentBackoff: breaker.CurrentBackoff,
		ResetDelay:     breaker.CurrentBackoff.String(),
		Uptime:         now.Sub(c.startedAt).Seconds(),
		LastReset:      c.lastReset,
		RateLimiter:    c.limiter.Stats(),
	}
}

// admit runs the pre-call checks and charges the operation. Nothing is
// charged when the call is refused.
func (c *Client) admit(ctx context.Context, op string, cost int64) error {
	if c.provider == nil {
		return ErrNotConfigured
	}
	if c.breaker.IsOpen() {
		c.logger.Warn("Circuit breaker is open, request blocked", slog.String("operation", op))
		return ErrCircuitOpen
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}
	// The breaker may have opened while this call waited for a slot.
	if c.breaker.IsOpen() {
		return ErrCircuitOpen
	}

	c.mu.Lock()
	c.quotaUsed += cost
	c.requests++
	total := c.quotaUsed
	c.mu.Unlock()

	c.logger.Info("Quota charged", slog.String("operation", op), slog.Int64("units", cost), slog.Int64("total", total))
	return nil
}

// fail counts a provider failure and opens the circuit on quota exhaustion.
func (c *Client) fail(op string, err error) error {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()

	var perr *ProviderError
	if errors.As(err, &perr) && perr.Kind == KindQuotaExhausted {
		delay, opened := c.breaker.Trip()
		if !opened {
			c.logger.Warn("Quota exceeded while circuit breaker is open",
				slog.String("operation", op),
				slog.Duration("resetIn", delay),
			)
			return err
		}
		c.logger.Error("Quota exceeded, opening circuit breaker",
			slog.String("operation", op),
			slog.Duration("resetIn", delay),
			slog.Any("error", err.Error()),
		)
		return err
	}
	c.logger.Error("Provider call failed", slog.String("operation", op), slog.Any("error", err.Error()))
	return err
}
