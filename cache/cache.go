package cache

import (
	"time"

	"github.com/spdeepak/livewatch/channel"
)

// Store defines the contract for all storage backends.
type Store interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry) error
	Delete(key string) error
	// CompareAndDelete removes key only while it still holds old, so an
	// expired read cannot drop an entry written after it.
	CompareAndDelete(key string, old *Entry) error
	Clear() error
	// Entries returns every stored entry, expired or not. Used for stats.
	Entries() []*Entry
	Close() error // For graceful shutdown/cleanup
}

// Entry holds a resolved channel list and its caching metadata.
type Entry struct {
	Key      string            `json:"key"`
	Channels []channel.Channel `json:"channels"`
	StoredAt time.Time         `json:"storedAt"`
	TTL      time.Duration     `json:"ttl"` // Time-to-Live, chosen at write time
}

// IsExpired checks if the entry is past its TTL at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// HasLive reports whether any channel in the payload is live.
func (e *Entry) HasLive() bool {
	return anyLive(e.Channels)
}

func anyLive(channels []channel.Channel) bool {
	for _, c := range channels {
		if c.IsLive() {
			return true
		}
	}
	return false
}
