// Package livewatch resolves the live status of tracked channels while
// spending as little of the provider's quota as possible.
//
// A Resolver serves the aggregate list from the result cache. On a miss it
// runs one resolution pass: channels that are not due for a check keep their
// persisted state, due channels with a known video are validated in one cheap
// batched call, and only the rest pay for a live search. A pass never fails;
// callers get the freshest list available, possibly stale or empty.
package livewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/channel"
	"github.com/spdeepak/livewatch/events"
	"github.com/spdeepak/livewatch/quota"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StatusAPI is the governed provider client. *quota.Client implements it.
type StatusAPI interface {
	ResolveHandle(ctx context.Context, handle string) (string, error)
	ValidateVideos(ctx context.Context, ids []string) (map[string]quota.VideoStatus, error)
	SearchLiveVideo(ctx context.Context, channelID string) (string, error)
	CircuitOpen() bool
}

// Resolver produces the resolved channel list.
type Resolver struct {
	repo      channel.Repository
	api       StatusAPI
	cache     *cache.ResultCache
	cfg       *Config
	logger    *slog.Logger
	publisher events.Publisher
	now       func() time.Time

	group    singleflight.Group
	lastGood atomic.Pointer[[]channel.Channel]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithPublisher sets where status transitions are published. Defaults to a
// logging publisher.
func WithPublisher(p events.Publisher) Option {
	return func(r *Resolver) { r.publisher = p }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver wires a resolver. A nil cfg uses DefaultConfig; zero fields
// fall back to their defaults.
func NewResolver(repo channel.Repository, api StatusAPI, results *cache.ResultCache, cfg *Config, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig
	}
	r := &Resolver{
		repo:   repo,
		api:    api,
		cache:  results,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = events.NewLoggingPublisher(r.logger)
	}
	return r
}

// Resolve returns the current channel list ordered by position. It never
// fails: on error it returns the last good list, or an empty one.
//
// Concurrent callers share one pass. The pass is detached from ctx, so a
// caller that gives up early gets the last good list while the pass finishes
// and refreshes the cache in the background.
func (r *Resolver) Resolve(ctx context.Context) []channel.Channel {
	if payload, ok := r.cache.Get(r.cfg.CacheKey); ok {
		return payload
	}

	detached := context.WithoutCancel(ctx)
	result := r.group.DoChan(r.cfg.CacheKey, func() (any, error) {
		return r.pass(detached)
	})

	select {
	case res := <-result:
		if res.Err != nil {
			r.logger.Error("Resolution failed, serving last known state", slog.Any("error", res.Err.Error()))
			return r.Snapshot()
		}
		return cloneChannels(res.Val.([]channel.Channel))
	case <-ctx.Done():
		r.logger.Warn("Caller left before resolution finished, serving last known state", slog.Any("error", ctx.Err().Error()))
		return r.Snapshot()
	}
}

// Refresh drops the cached list and resolves again.
func (r *Resolver) Refresh(ctx context.Context) []channel.Channel {
	if err := r.cache.Invalidate(r.cfg.CacheKey); err != nil {
		r.logger.Error("Failed to invalidate cached list", slog.Any("cacheKey", r.cfg.CacheKey), slog.Any("error", err.Error()))
	}
	return r.Resolve(ctx)
}

// Snapshot returns the last successfully resolved list, or an empty list.
func (r *Resolver) Snapshot() []channel.Channel {
	if last := r.lastGood.Load(); last != nil {
		return cloneChannels(*last)
	}
	return []channel.Channel{}
}

// outcome is the result of one channel in a pass.
type outcome struct {
	original channel.Channel
	current  channel.Channel
	// settled channels need no provider check in this pass.
	settled bool
	// report is what the caller sees when it differs from what is persisted,
	// e.g. a configuration gap reported offline but not written back.
	report *channel.Channel
	// validated holds the batch validation answer for the known video.
	validated *quota.VideoStatus
	// validateErr is set when the batch call failed for this channel.
	validateErr error
}

func (r *Resolver) pass(ctx context.Context) (result []channel.Channel, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolution panicked: %v", p)
		}
	}()

	// A pass that finished just before this one started already filled the
	// cache.
	if payload, ok := r.cache.Get(r.cfg.CacheKey); ok {
		return payload, nil
	}

	channels, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	channel.SortByPosition(channels)

	now := r.now()
	outcomes := make([]*outcome, len(channels))
	r.fanOut(len(channels), func(i int) {
		outcomes[i] = r.prepare(ctx, channels[i], now)
	})
	for i, o := range outcomes {
		if o == nil {
			c := channels[i].Normalize()
			outcomes[i] = &outcome{original: c, current: c, settled: true}
		}
	}

	r.validate(ctx, outcomes)

	r.fanOut(len(outcomes), func(i int) {
		r.settle(ctx, outcomes[i], now)
	})

	out := make([]channel.Channel, len(outcomes))
	for i, o := range outcomes {
		c := o.current
		if o.report != nil {
			c = *o.report
		}
		c = c.Normalize()
		c.Avatar = channel.AvatarURL(r.cfg.AvatarBaseURL, c.Avatar)
		out[i] = c
	}

	if err := r.cache.Set(r.cfg.CacheKey, out); err != nil {
		r.logger.Error("Failed to cache resolved list", slog.Any("cacheKey", r.cfg.CacheKey), slog.Any("error", err.Error()))
	}
	snapshot := cloneChannels(out)
	r.lastGood.Store(&snapshot)
	return out, nil
}

// fanOut runs fn for every index, bounded by MaxConcurrency. A panic in fn
// is logged and leaves that index untouched.
func (r *Resolver) fanOut(n int, fn func(i int)) {
	var g errgroup.Group
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("Channel check panicked", slog.Any("panic", p))
				}
			}()
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// prepare skips placeholders, resolves handles and decides eligibility.
func (r *Resolver) prepare(ctx context.Context, ch channel.Channel, now time.Time) *outcome {
	ch = ch.Normalize()
	o := &outcome{original: ch, current: ch}

	if ch.IsPlaceholder(r.cfg.PlaceholderMarker) {
		r.reportOffline(o)
		return o
	}

	if ch.IsHandle(r.cfg.HandlePrefix) {
		id, err := r.api.ResolveHandle(ctx, ch.ChannelID)
		switch {
		case errors.Is(err, quota.ErrNotConfigured):
			r.reportOffline(o)
			return o
		case err != nil:
			if !errors.Is(err, quota.ErrCircuitOpen) {
				r.logger.Error("Failed to resolve handle", slog.Any("channel", ch.ID), slog.Any("handle", ch.ChannelID), slog.Any("error", err.Error()))
			}
			o.settled = true
			return o
		case id == "":
			r.logger.Warn("Handle does not resolve to a channel", slog.Any("channel", ch.ID), slog.Any("handle", ch.ChannelID))
			r.reportOffline(o)
			return o
		}
		o.current.ChannelID = id
	}

	if !r.cfg.Eligible(o.current, now) {
		o.settled = true
	}
	return o
}

// reportOffline settles o as offline without persisting the status.
func (r *Resolver) reportOffline(o *outcome) {
	report := o.current
	report.Status = channel.StatusOffline
	report.ActiveVideoID = ""
	o.report = &report
	o.settled = true
}

// validate checks every known video of the due channels in one batched call.
func (r *Resolver) validate(ctx context.Context, outcomes []*outcome) {
	var ids []string
	seen := map[string]bool{}
	for _, o := range outcomes {
		if o.settled {
			continue
		}
		if id := o.current.KnownVideoID(); id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	statuses, err := r.api.ValidateVideos(ctx, ids)
	for _, o := range outcomes {
		id := o.current.KnownVideoID()
		if o.settled || id == "" {
			continue
		}
		if err != nil {
			o.validateErr = err
			continue
		}
		status := statuses[id]
		o.validated = &status
	}
}

// settle finishes the check of a due channel and persists what changed.
func (r *Resolver) settle(ctx context.Context, o *outcome, now time.Time) {
	if !o.settled {
		r.check(ctx, o, now)
	}
	r.persist(ctx, o, now)
}

func (r *Resolver) check(ctx context.Context, o *outcome, now time.Time) {
	c := &o.current
	log := r.logger.With(slog.Any("channel", c.ID))

	switch {
	case errors.Is(o.validateErr, quota.ErrNotConfigured):
		r.reportOffline(o)
		return
	case o.validateErr != nil:
		if !errors.Is(o.validateErr, quota.ErrCircuitOpen) {
			log.Error("Video validation failed, keeping persisted state", slog.Any("videoId", c.KnownVideoID()), slog.Any("error", o.validateErr.Error()))
		}
		return
	case o.validated != nil && o.validated.Live:
		markLive(c, o.validated.ID, now)
		return
	}

	// The known video ended, or there never was one. Only a search can tell
	// whether a new stream started.
	ended := o.validated != nil
	if r.api.CircuitOpen() {
		if ended {
			markOffline(c, now)
		}
		return
	}

	videoID, err := r.api.SearchLiveVideo(ctx, c.ChannelID)
	switch {
	case errors.Is(err, quota.ErrNotConfigured):
		r.reportOffline(o)
	case err != nil:
		if ended {
			markOffline(c, now)
			return
		}
		if !errors.Is(err, quota.ErrCircuitOpen) {
			log.Error("Live search failed, keeping persisted state", slog.Any("error", err.Error()))
		}
	case videoID != "":
		markLive(c, videoID, now)
	default:
		markOffline(c, now)
	}
}

func markLive(c *channel.Channel, videoID string, now time.Time) {
	c.Status = channel.StatusLive
	c.ActiveVideoID = videoID
	c.LastKnownLiveVideoID = videoID
	c.LastCheckedAt = &now
	c.LastVideoValidatedAt = &now
}

func markOffline(c *channel.Channel, now time.Time) {
	c.Status = channel.StatusOffline
	c.ActiveVideoID = ""
	c.LastCheckedAt = &now
}

// persist writes the changed fields of o back to the repository. On failure
// the channel falls back to its persisted state.
func (r *Resolver) persist(ctx context.Context, o *outcome, now time.Time) {
	update := diff(o.original, o.current)
	if update.IsEmpty() {
		return
	}

	err := r.repo.Update(ctx, o.original.ID, update)
	switch {
	case errors.Is(err, channel.ErrNotFound):
		r.logger.Debug("Channel deleted during resolution", slog.Any("channel", o.original.ID))
		return
	case err != nil:
		r.logger.Error("Failed to persist channel status", slog.Any("channel", o.original.ID), slog.Any("error", err.Error()))
		o.current = o.original
		o.report = nil
		return
	}

	if update.Status == nil {
		return
	}
	live := *update.Status == channel.StatusLive
	evt := events.StatusChanged{
		ChannelID: o.current.ChannelID,
		ID:        o.current.ID,
		Name:      o.current.Name,
		VideoID:   o.current.ActiveVideoID,
		At:        now,
	}
	if err := events.PublishStatusChanged(ctx, r.publisher, live, evt); err != nil {
		r.logger.Error("Failed to publish status change", slog.Any("channel", o.current.ID), slog.Any("error", err.Error()))
	}
}

// diff returns the update turning before into after.
func diff(before, after channel.Channel) channel.Update {
	var u channel.Update
	if after.ChannelID != before.ChannelID {
		u.ChannelID = &after.ChannelID
	}
	if after.Status != before.Status {
		u.Status = &after.Status
	}
	if after.ActiveVideoID != before.ActiveVideoID {
		u.ActiveVideoID = &after.ActiveVideoID
	}
	if after.LastKnownLiveVideoID != before.LastKnownLiveVideoID {
		u.LastKnownLiveVideoID = &after.LastKnownLiveVideoID
	}
	if !sameTime(after.LastCheckedAt, before.LastCheckedAt) && after.LastCheckedAt != nil {
		u.LastCheckedAt = after.LastCheckedAt
	}
	if !sameTime(after.LastVideoValidatedAt, before.LastVideoValidatedAt) && after.LastVideoValidatedAt != nil {
		u.LastVideoValidatedAt = after.LastVideoValidatedAt
	}
	return u
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneChannels(in []channel.Channel) []channel.Channel {
	out := make([]channel.Channel, len(in))
	copy(out, in)
	return out
}
