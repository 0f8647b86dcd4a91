package channel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierKinds(t *testing.T) {
	assert.True(t, Channel{ChannelID: ""}.IsPlaceholder("PLACEHOLDER"))
	assert.True(t, Channel{ChannelID: "UC_PLACEHOLDER_1"}.IsPlaceholder("PLACEHOLDER"))
	assert.False(t, Channel{ChannelID: "UCabc"}.IsPlaceholder("PLACEHOLDER"))

	assert.True(t, Channel{ChannelID: "@creator"}.IsHandle("@"))
	assert.False(t, Channel{ChannelID: "UCabc"}.IsHandle("@"))
}

func TestNormalizeClearsVideoWhenOffline(t *testing.T) {
	c := Channel{Status: "", ActiveVideoID: "vid"}.Normalize()
	assert.Equal(t, StatusOffline, c.Status)
	assert.Empty(t, c.ActiveVideoID)

	live := Channel{Status: StatusLive, ActiveVideoID: "vid"}.Normalize()
	assert.Equal(t, "vid", live.ActiveVideoID)
}

func TestKnownVideoIDPrefersActive(t *testing.T) {
	assert.Equal(t, "a", Channel{ActiveVideoID: "a", LastKnownLiveVideoID: "b"}.KnownVideoID())
	assert.Equal(t, "b", Channel{LastKnownLiveVideoID: "b"}.KnownVideoID())
	assert.Empty(t, Channel{}.KnownVideoID())
}

func TestAvatarURL(t *testing.T) {
	base := "https://cdn.example.com/storage/v1/object/public/avatar/"
	assert.Equal(t, "https://cdn.example.com/storage/v1/object/public/avatar/a.jpg", AvatarURL(base, "a.jpg"))
	assert.Equal(t, "https://elsewhere/a.jpg", AvatarURL(base, "https://elsewhere/a.jpg"))
	assert.Equal(t, "a.jpg", AvatarURL("", "a.jpg"))
}

func TestMemoryRepositoryOrderAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(
		Channel{ID: "b", Position: 2},
		Channel{ID: "a", Position: 1},
		Channel{ID: "c", Position: 1},
	)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{list[0].ID, list[1].ID, list[2].ID})

	now := time.Now()
	live := StatusLive
	video := "vid"
	require.NoError(t, repo.Update(ctx, "a", Update{Status: &live, ActiveVideoID: &video, LastCheckedAt: &now}))

	got, ok := repo.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusLive, got.Status)
	assert.Equal(t, "vid", got.ActiveVideoID)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, got.LastCheckedAt.Equal(now))
	assert.Equal(t, 1, repo.UpdateCount())

	assert.ErrorIs(t, repo.Update(ctx, "missing", Update{Status: &live}), ErrNotFound)
}

func TestUpdateIsEmpty(t *testing.T) {
	assert.True(t, Update{}.IsEmpty())
	id := "UC1"
	assert.False(t, Update{ChannelID: &id}.IsEmpty())
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	raw := `channels:
  - id: "1"
    name: Crystal
    role: Godmother
    channel_id: UCVox_6S1p0JBJx3MIMxUHIQ
    avatar: crystal.jpg
    status: live
    youtube_id: abc
    position: 1
  - id: "2"
    name: Gashima
    channel_id: "@gashima"
    status: offline
    youtube_id: stale
    position: 2
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	channels, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, StatusLive, channels[0].Status)
	assert.Equal(t, "abc", channels[0].ActiveVideoID)
	assert.Equal(t, "@gashima", channels[1].ChannelID)
	assert.Empty(t, channels[1].ActiveVideoID)
}
