package postgres

import (
	"testing"
	"time"

	"github.com/spdeepak/livewatch/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestToChannel(t *testing.T) {
	checked := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	got := toChannel(streamerModel{
		ID:            "s1",
		Name:          "Creator",
		ChannelID:     "UC1",
		Status:        "live",
		YoutubeID:     ptr("v1"),
		LatestVideoID: ptr("v1"),
		LastChecked:   &checked,
		Position:      3,
	})
	assert.Equal(t, channel.Channel{
		ID:                   "s1",
		Name:                 "Creator",
		ChannelID:            "UC1",
		Status:               channel.StatusLive,
		ActiveVideoID:        "v1",
		LastKnownLiveVideoID: "v1",
		LastCheckedAt:        &checked,
		Position:             3,
	}, got)
}

func TestToChannelEnforcesOfflineInvariant(t *testing.T) {
	got := toChannel(streamerModel{ID: "s1", Status: "", YoutubeID: ptr("stale")})
	assert.Equal(t, channel.StatusOffline, got.Status)
	assert.Empty(t, got.ActiveVideoID)
}

func TestUpdateColumns(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	assert.Empty(t, updateColumns(channel.Update{}, now))

	offline := channel.StatusOffline
	cols := updateColumns(channel.Update{
		Status:        &offline,
		ActiveVideoID: ptr(""),
		LastCheckedAt: &now,
	}, now)
	require.Len(t, cols, 4)
	assert.Equal(t, "offline", cols["status"])
	assert.Nil(t, cols["youtube_id"])
	assert.Contains(t, cols, "youtube_id")
	assert.Equal(t, now, cols["last_checked"])
	assert.Equal(t, now, cols["updated_at"])

	cols = updateColumns(channel.Update{ChannelID: ptr("UC9"), LastKnownLiveVideoID: ptr("v9")}, now)
	assert.Equal(t, "UC9", cols["channel_id"])
	assert.Equal(t, ptr("v9"), cols["latest_video_id"])
}

func TestMigrationsAreBundled(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	raw, err := migrationFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS streamers")
}
