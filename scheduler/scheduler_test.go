package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spdeepak/livewatch"
	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/channel"
	"github.com/spdeepak/livewatch/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingWarmer struct {
	calls    atomic.Int32
	deadline atomic.Bool
}

func (r *countingWarmer) Resolve(ctx context.Context) []channel.Channel {
	r.calls.Add(1)
	_, ok := ctx.Deadline()
	r.deadline.Store(ok)
	return nil
}

type countingResetter struct {
	calls atomic.Int32
}

func (r *countingResetter) ResetMetrics() { r.calls.Add(1) }

func TestQuotaResetAtPacificMidnight(t *testing.T) {
	s, err := New(DefaultConfig, &countingWarmer{}, &countingResetter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	from := time.Date(2026, 7, 1, 15, 30, 0, 0, la)
	next := s.NextQuotaReset(from)
	assert.True(t, time.Date(2026, 7, 2, 0, 0, 0, 0, la).Equal(next), "got %s", next)
	assert.True(t, time.Date(2026, 7, 2, 7, 0, 0, 0, time.UTC).Equal(next), "got %s", next.UTC())
}

func TestEmptyScheduleDisablesJob(t *testing.T) {
	s, err := New(Config{QuotaResetSpec: "0 0 * * *"}, &countingWarmer{}, &countingResetter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())

	s, err = New(Config{RefreshSpec: "@every 1m"}, &countingWarmer{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())
	assert.True(t, s.NextQuotaReset(time.Now()).IsZero())
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{RefreshSpec: "every minute"}, &countingWarmer{}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Timezone: "Mars/Olympus"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRunJobs(t *testing.T) {
	warmer := &countingWarmer{}
	resetter := &countingResetter{}
	s, err := New(DefaultConfig, warmer, resetter, nil)
	require.NoError(t, err)

	s.RunWarmup(context.Background())
	s.RunQuotaReset()

	assert.Equal(t, int32(1), warmer.calls.Load())
	assert.True(t, warmer.deadline.Load())
	assert.Equal(t, int32(1), resetter.calls.Load())
}

func TestStartStop(t *testing.T) {
	s, err := New(DefaultConfig, &countingWarmer{}, &countingResetter{}, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	s.Stop()
}

type listCountingRepo struct {
	*channel.MemoryRepository
	lists atomic.Int32
}

func (r *listCountingRepo) List(ctx context.Context) ([]channel.Channel, error) {
	r.lists.Add(1)
	return r.MemoryRepository.List(ctx)
}

func TestWarmupWithinTTLSkipsPass(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	repo := &listCountingRepo{MemoryRepository: channel.NewMemoryRepository(
		channel.Channel{ID: "1", Name: "One", ChannelID: "UC1", Position: 1},
	)}
	results := cache.NewResultCache(cache.NewMemoryStore(10), nil).WithClock(clock)
	resolver := livewatch.NewResolver(repo, quota.NewClient(nil, nil), results, nil, livewatch.WithClock(clock))

	s, err := New(DefaultConfig, resolver, nil, nil)
	require.NoError(t, err)

	s.RunWarmup(context.Background())
	assert.Equal(t, int32(1), repo.lists.Load())

	// Every channel is offline, so the list is cached for the offline TTL.
	now = now.Add(cache.DefaultConfig.OfflineTTL / 2)
	s.RunWarmup(context.Background())
	s.RunWarmup(context.Background())
	assert.Equal(t, int32(1), repo.lists.Load())

	now = now.Add(cache.DefaultConfig.OfflineTTL)
	s.RunWarmup(context.Background())
	assert.Equal(t, int32(2), repo.lists.Load())
}
