// Package cache memoizes resolved channel lists with a TTL chosen from the
// payload itself: short while anything is live, long when everything is
// offline.
package cache

import (
	"log/slog"
	"slices"
	"time"

	"github.com/spdeepak/livewatch/channel"
)

// Config holds the result cache settings.
type Config struct {
	// LiveTTL applies when at least one channel in the payload is live.
	LiveTTL time.Duration
	// OfflineTTL applies when every channel is offline.
	OfflineTTL time.Duration
	// MaxEntries bounds the in-memory store.
	MaxEntries int
}

// DefaultConfig provides defaults.
var DefaultConfig = &Config{
	LiveTTL:    2 * time.Minute,
	OfflineTTL: 10 * time.Minute,
	MaxEntries: 100,
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size           int     `json:"size"`
	ValidEntries   int     `json:"validEntries"`
	ExpiredEntries int     `json:"expiredEntries"`
	HitRate        float64 `json:"hitRate"`
}

// ResultCache stores channel lists in a Store with adaptive TTLs. Expired
// entries are evicted lazily on read.
type ResultCache struct {
	store  Store
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewResultCache wraps store. A nil cfg uses DefaultConfig.
func NewResultCache(store Store, cfg *Config) *ResultCache {
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &ResultCache{store: store, cfg: *cfg, now: time.Now, logger: slog.Default()}
}

// WithClock replaces the time source. Intended for tests.
func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.now = now
	return c
}

// WithLogger sets the logger. Defaults to slog.Default().
func (c *ResultCache) WithLogger(logger *slog.Logger) *ResultCache {
	c.logger = logger
	return c
}

// Get returns the cached payload for key, or false when it is missing or
// expired. Expired entries are removed.
func (c *ResultCache) Get(key string) ([]channel.Channel, bool) {
	entry, ok := c.store.Get(key)
	if !ok || entry == nil {
		return nil, false
	}
	if entry.IsExpired(c.now()) {
		if err := c.store.CompareAndDelete(key, entry); err != nil {
			c.logger.Error("Failed to evict expired entry", slog.Any("cacheKey", key), slog.Any("error", err.Error()))
		}
		return nil, false
	}
	return slices.Clone(entry.Channels), true
}

// Set stores payload under key with a TTL picked from its content.
func (c *ResultCache) Set(key string, payload []channel.Channel) error {
	return c.store.Set(key, &Entry{
		Key:      key,
		Channels: slices.Clone(payload),
		StoredAt: c.now(),
		TTL:      c.TTLFor(payload),
	})
}

// TTLFor returns the TTL a payload would be stored with.
func (c *ResultCache) TTLFor(payload []channel.Channel) time.Duration {
	if anyLive(payload) {
		return c.cfg.LiveTTL
	}
	return c.cfg.OfflineTTL
}

// Has reports whether key holds a valid entry.
func (c *ResultCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Invalidate drops key.
func (c *ResultCache) Invalidate(key string) error {
	return c.store.Delete(key)
}

// Clear drops every entry.
func (c *ResultCache) Clear() error {
	return c.store.Clear()
}

// Stats counts stored, valid and expired-but-not-yet-evicted entries.
func (c *ResultCache) Stats() Stats {
	now := c.now()
	entries := c.store.Entries()
	stats := Stats{Size: len(entries)}
	for _, e := range entries {
		if e.IsExpired(now) {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	stats.HitRate = float64(stats.ValidEntries) / float64(max(stats.Size, 1))
	return stats
}
