package cache

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spdeepak/livewatch/channel"
)

type fakeClock struct{ now time.Time }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func offline(id string) channel.Channel {
	return channel.Channel{ID: id, Status: channel.StatusOffline}
}

func live(id, video string) channel.Channel {
	return channel.Channel{ID: id, Status: channel.StatusLive, ActiveVideoID: video}
}

func newCache(clock *fakeClock) *ResultCache {
	return NewResultCache(NewMemoryStore(10), nil).WithClock(clock.Now)
}

func storedTTL(c *ResultCache, key string) time.Duration {
	entry, _ := c.store.Get(key)
	return entry.TTL
}

func TestTTLDependsOnLiveChannels(t *testing.T) {
	clock := newClock()
	c := newCache(clock)

	require.NoError(t, c.Set("mixed", []channel.Channel{offline("a"), live("b", "v")}))
	require.NoError(t, c.Set("quiet", []channel.Channel{offline("a"), offline("b")}))
	require.NoError(t, c.Set("empty", nil))

	assert.Equal(t, DefaultConfig.LiveTTL, storedTTL(c, "mixed"))
	assert.Equal(t, DefaultConfig.OfflineTTL, storedTTL(c, "quiet"))
	assert.Equal(t, DefaultConfig.OfflineTTL, storedTTL(c, "empty"))
}

func TestGetWithinTTLReturnsPayload(t *testing.T) {
	clock := newClock()
	c := newCache(clock)
	payload := []channel.Channel{live("a", "v1"), offline("b")}
	require.NoError(t, c.Set("all", payload))

	clock.Advance(DefaultConfig.LiveTTL)
	got, ok := c.Get("all")
	require.True(t, ok)
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, c.Has("all"))
}

func TestGetAfterTTLEvicts(t *testing.T) {
	clock := newClock()
	c := newCache(clock)
	require.NoError(t, c.Set("all", []channel.Channel{live("a", "v1")}))

	clock.Advance(DefaultConfig.LiveTTL + time.Millisecond)
	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.Equal(t, 0, stats.ValidEntries)

	got, ok := c.Get("all")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestGetReturnsCopy(t *testing.T) {
	c := newCache(newClock())
	require.NoError(t, c.Set("all", []channel.Channel{offline("a")}))

	got, _ := c.Get("all")
	got[0].Name = "mutated"

	again, _ := c.Get("all")
	assert.Empty(t, again[0].Name)
}

func TestInvalidateAndClear(t *testing.T) {
	c := newCache(newClock())
	require.NoError(t, c.Set("a", nil))
	require.NoError(t, c.Set("b", nil))

	require.NoError(t, c.Invalidate("a"))
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))

	require.NoError(t, c.Clear())
	assert.Equal(t, Stats{HitRate: 0}, c.Stats())
}

func TestStatsHitRate(t *testing.T) {
	clock := newClock()
	c := newCache(clock)
	require.NoError(t, c.Set("live", []channel.Channel{live("a", "v")}))
	require.NoError(t, c.Set("quiet", []channel.Channel{offline("b")}))

	clock.Advance(DefaultConfig.LiveTTL + time.Second)
	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.ValidEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestMemoryStoreEvictsOldestWrite(t *testing.T) {
	store := NewMemoryStore(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Set(fmt.Sprintf("k%d", i), &Entry{}))
	}
	// Rewriting k0 makes k1 the oldest write.
	require.NoError(t, store.Set("k0", &Entry{}))
	require.NoError(t, store.Set("k3", &Entry{}))

	_, ok := store.Get("k1")
	assert.False(t, ok)
	for _, key := range []string{"k0", "k2", "k3"} {
		_, ok := store.Get(key)
		assert.True(t, ok, key)
	}
	assert.Len(t, store.Entries(), 3)
}

func TestMemoryStoreOverwriteDoesNotEvict(t *testing.T) {
	store := NewMemoryStore(1)
	require.NoError(t, store.Set("only", &Entry{TTL: time.Second}))
	require.NoError(t, store.Set("only", &Entry{TTL: time.Minute}))

	entry, ok := store.Get("only")
	require.True(t, ok)
	assert.Equal(t, time.Minute, entry.TTL)
}

func TestConnectAcceptsURLAndAddress(t *testing.T) {
	client, err := Connect("redis://:secret@localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())

	client, err = Connect("cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", client.Options().Addr)
	require.NoError(t, client.Close())
}

// interleavingStore runs afterGet once, right after a read, to model a write
// landing between an expired read and its eviction.
type interleavingStore struct {
	*MemoryStore
	afterGet func()
	evictErr error
}

func (s *interleavingStore) Get(key string) (*Entry, bool) {
	entry, ok := s.MemoryStore.Get(key)
	if hook := s.afterGet; hook != nil {
		s.afterGet = nil
		hook()
	}
	return entry, ok
}

func (s *interleavingStore) CompareAndDelete(key string, old *Entry) error {
	if s.evictErr != nil {
		return s.evictErr
	}
	return s.MemoryStore.CompareAndDelete(key, old)
}

func TestExpiredEvictionKeepsConcurrentWrite(t *testing.T) {
	clock := newClock()
	store := &interleavingStore{MemoryStore: NewMemoryStore(10)}
	c := NewResultCache(store, nil).WithClock(clock.Now)

	require.NoError(t, c.Set("all", []channel.Channel{offline("stale")}))
	clock.Advance(DefaultConfig.OfflineTTL + time.Second)

	fresh := []channel.Channel{offline("fresh")}
	store.afterGet = func() { require.NoError(t, c.Set("all", fresh)) }

	_, ok := c.Get("all")
	assert.False(t, ok)

	got, ok := c.Get("all")
	require.True(t, ok, "entry written after the expired read must survive eviction")
	if diff := cmp.Diff(fresh, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreCompareAndDelete(t *testing.T) {
	store := NewMemoryStore(10)
	old := &Entry{Key: "k"}
	newer := &Entry{Key: "k"}
	require.NoError(t, store.Set("k", old))
	require.NoError(t, store.Set("k", newer))

	require.NoError(t, store.CompareAndDelete("k", old))
	_, ok := store.Get("k")
	assert.True(t, ok)

	require.NoError(t, store.CompareAndDelete("k", newer))
	_, ok = store.Get("k")
	assert.False(t, ok)
	require.NoError(t, store.CompareAndDelete("missing", old))
}

func TestEvictionFailureLogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	clock := newClock()
	store := &interleavingStore{MemoryStore: NewMemoryStore(10), evictErr: errors.New("store down")}
	c := NewResultCache(store, nil).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, c.Set("all", nil))
	clock.Advance(DefaultConfig.OfflineTTL + time.Second)

	_, ok := c.Get("all")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "Failed to evict expired entry")
	assert.Contains(t, buf.String(), "store down")
}
