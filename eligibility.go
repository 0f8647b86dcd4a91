package livewatch

import (
	"time"

	"github.com/spdeepak/livewatch/channel"
)

// IntervalFor returns how long after its last check a channel becomes due
// again. Live channels are rechecked soonest, channels that were live within
// the recent window next, and long-offline channels least often.
func (c *Config) IntervalFor(ch channel.Channel, now time.Time) time.Duration {
	if ch.IsLive() {
		return c.LiveInterval
	}
	if ch.LastVideoValidatedAt != nil && now.Sub(*ch.LastVideoValidatedAt) <= c.RecentlyLiveWindow {
		return c.RecentlyOfflineInterval
	}
	return c.LongOfflineInterval
}

// Eligible reports whether ch is due for a provider check at now. A channel
// that was never checked is always due.
func (c *Config) Eligible(ch channel.Channel, now time.Time) bool {
	if ch.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*ch.LastCheckedAt) > c.IntervalFor(ch, now)
}
