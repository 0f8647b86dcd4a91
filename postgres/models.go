package postgres

import (
	"time"

	"github.com/spdeepak/livewatch/channel"
)

type streamerModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	Name           string     `gorm:"column:name"`
	Role           string     `gorm:"column:role"`
	ChannelID      string     `gorm:"column:channel_id"`
	Avatar         string     `gorm:"column:avatar"`
	Status         string     `gorm:"column:status"`
	YoutubeID      *string    `gorm:"column:youtube_id"`
	LatestVideoID  *string    `gorm:"column:latest_video_id"`
	LastChecked    *time.Time `gorm:"column:last_checked"`
	LastVideoCheck *time.Time `gorm:"column:last_video_check"`
	Position       int        `gorm:"column:position"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (streamerModel) TableName() string { return "streamers" }

func toChannel(m streamerModel) channel.Channel {
	return channel.Channel{
		ID:                   m.ID,
		Name:                 m.Name,
		Role:                 m.Role,
		ChannelID:            m.ChannelID,
		Avatar:               m.Avatar,
		Status:               channel.Status(m.Status),
		ActiveVideoID:        deref(m.YoutubeID),
		LastKnownLiveVideoID: deref(m.LatestVideoID),
		LastCheckedAt:        m.LastChecked,
		LastVideoValidatedAt: m.LastVideoCheck,
		Position:             m.Position,
	}.Normalize()
}

// updateColumns maps an update onto column values. Empty video ids are stored
// as NULL.
func updateColumns(u channel.Update, now time.Time) map[string]any {
	cols := map[string]any{}
	if u.ChannelID != nil {
		cols["channel_id"] = *u.ChannelID
	}
	if u.Status != nil {
		cols["status"] = string(*u.Status)
	}
	if u.ActiveVideoID != nil {
		cols["youtube_id"] = nullable(*u.ActiveVideoID)
	}
	if u.LastKnownLiveVideoID != nil {
		cols["latest_video_id"] = nullable(*u.LastKnownLiveVideoID)
	}
	if u.LastCheckedAt != nil {
		cols["last_checked"] = *u.LastCheckedAt
	}
	if u.LastVideoValidatedAt != nil {
		cols["last_video_check"] = *u.LastVideoValidatedAt
	}
	if len(cols) > 0 {
		cols["updated_at"] = now
	}
	return cols
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
