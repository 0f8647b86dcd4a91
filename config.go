package livewatch

import (
	"time"
)

// Config holds the resolver settings.
type Config struct {
	// CacheKey is the aggregate key the resolved list is cached under.
	CacheKey string
	// LiveInterval is how often a live channel is rechecked, short so the end
	// of a stream is noticed promptly.
	LiveInterval time.Duration
	// RecentlyOfflineInterval applies to an offline channel confirmed live
	// within RecentlyLiveWindow.
	RecentlyOfflineInterval time.Duration
	// LongOfflineInterval applies to every other offline channel.
	LongOfflineInterval time.Duration
	RecentlyLiveWindow  time.Duration
	// PlaceholderMarker flags channel ids an administrator has not filled in.
	PlaceholderMarker string
	// HandlePrefix marks ids that are handles, resolved to a canonical id once.
	HandlePrefix string
	// MaxConcurrency bounds the per-channel fan-out. Zero means unbounded; the
	// shared rate limiter still serializes provider calls.
	MaxConcurrency int
	// AvatarBaseURL expands relative avatar paths in the output.
	AvatarBaseURL string
}

// DefaultConfig provides defaults.
var DefaultConfig = &Config{
	CacheKey:                "channels:all",
	LiveInterval:            2 * time.Minute,
	RecentlyOfflineInterval: 5 * time.Minute,
	LongOfflineInterval:     15 * time.Minute,
	RecentlyLiveWindow:      time.Hour,
	PlaceholderMarker:       "PLACEHOLDER",
	HandlePrefix:            "@",
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() *Config {
	if c.CacheKey == "" {
		c.CacheKey = DefaultConfig.CacheKey
	}
	if c.LiveInterval <= 0 {
		c.LiveInterval = DefaultConfig.LiveInterval
	}
	if c.RecentlyOfflineInterval <= 0 {
		c.RecentlyOfflineInterval = DefaultConfig.RecentlyOfflineInterval
	}
	if c.LongOfflineInterval <= 0 {
		c.LongOfflineInterval = DefaultConfig.LongOfflineInterval
	}
	if c.RecentlyLiveWindow <= 0 {
		c.RecentlyLiveWindow = DefaultConfig.RecentlyLiveWindow
	}
	if c.PlaceholderMarker == "" {
		c.PlaceholderMarker = DefaultConfig.PlaceholderMarker
	}
	if c.HandlePrefix == "" {
		c.HandlePrefix = DefaultConfig.HandlePrefix
	}
	return &c
}
