// Package channel holds the tracked channel model and the persistence contract
// the resolver reads from and writes back to.
package channel

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the live state of a tracked channel.
type Status string

const (
	StatusLive    Status = "live"
	StatusOffline Status = "offline"
)

// ErrNotFound is returned by a Repository when the channel no longer exists.
var ErrNotFound = errors.New("channel not found")

// Channel is a followed creator whose live status is tracked.
type Channel struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Role      string `json:"role" yaml:"role"`
	ChannelID string `json:"channelId" yaml:"channel_id"`
	Avatar    string `json:"avatar" yaml:"avatar"`
	Status    Status `json:"status" yaml:"status"`
	// ActiveVideoID is the live video, set only while Status is live.
	ActiveVideoID string `json:"youtubeId" yaml:"youtube_id"`
	// LastKnownLiveVideoID is the most recent video seen live, kept after the
	// stream ends so a resumed stream can be confirmed without a search.
	LastKnownLiveVideoID string     `json:"latestVideoId,omitempty" yaml:"latest_video_id"`
	LastCheckedAt        *time.Time `json:"lastChecked,omitempty" yaml:"last_checked_at"`
	LastVideoValidatedAt *time.Time `json:"lastVideoCheck,omitempty" yaml:"last_video_validated_at"`
	Position             int        `json:"position" yaml:"position"`
}

// IsLive reports whether the channel is currently streaming.
func (c Channel) IsLive() bool {
	return c.Status == StatusLive
}

// IsPlaceholder reports whether the external identifier is missing or still a
// placeholder left by an administrator.
func (c Channel) IsPlaceholder(marker string) bool {
	id := strings.TrimSpace(c.ChannelID)
	if id == "" {
		return true
	}
	return marker != "" && strings.Contains(id, marker)
}

// IsHandle reports whether the external identifier is a handle that must be
// resolved to a canonical channel id first.
func (c Channel) IsHandle(prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.TrimSpace(c.ChannelID), prefix)
}

// KnownVideoID returns the video worth validating before paying for a search.
func (c Channel) KnownVideoID() string {
	if c.ActiveVideoID != "" {
		return c.ActiveVideoID
	}
	return c.LastKnownLiveVideoID
}

// Normalize enforces the status invariants: unknown statuses are offline and
// an offline channel has no active video.
func (c Channel) Normalize() Channel {
	if c.Status != StatusLive {
		c.Status = StatusOffline
		c.ActiveVideoID = ""
	}
	return c
}

// AvatarURL expands a stored avatar path against the public storage base URL.
// Absolute URLs are returned untouched.
func AvatarURL(baseURL, path string) string {
	if path == "" || baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Update carries the fields the resolver is allowed to change. Nil fields are
// left as they are.
type Update struct {
	ChannelID            *string
	Status               *Status
	ActiveVideoID        *string
	LastKnownLiveVideoID *string
	LastCheckedAt        *time.Time
	LastVideoValidatedAt *time.Time
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.ChannelID == nil && u.Status == nil && u.ActiveVideoID == nil &&
		u.LastKnownLiveVideoID == nil && u.LastCheckedAt == nil && u.LastVideoValidatedAt == nil
}

// Apply returns c with the update applied.
func (u Update) Apply(c Channel) Channel {
	if u.ChannelID != nil {
		c.ChannelID = *u.ChannelID
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.ActiveVideoID != nil {
		c.ActiveVideoID = *u.ActiveVideoID
	}
	if u.LastKnownLiveVideoID != nil {
		c.LastKnownLiveVideoID = *u.LastKnownLiveVideoID
	}
	if u.LastCheckedAt != nil {
		t := *u.LastCheckedAt
		c.LastCheckedAt = &t
	}
	if u.LastVideoValidatedAt != nil {
		t := *u.LastVideoValidatedAt
		c.LastVideoValidatedAt = &t
	}
	return c
}

// Repository is the persistence collaborator.
type Repository interface {
	// List returns every tracked channel ordered by display position.
	List(ctx context.Context) ([]Channel, error)
	// Update writes the given fields. It returns ErrNotFound when the channel
	// was deleted in the meantime.
	Update(ctx context.Context, id string, update Update) error
}
