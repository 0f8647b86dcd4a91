// Package scheduler runs the periodic jobs: warming the channel list and
// resetting the quota counters when the provider's daily quota rolls over.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	rcron "github.com/robfig/cron/v3"
	"github.com/spdeepak/livewatch/channel"
)

// Warmer serves the channel list, running a resolution pass only when the
// cached list has expired. *livewatch.Resolver implements it.
type Warmer interface {
	Resolve(ctx context.Context) []channel.Channel
}

// QuotaResetter zeroes the quota counters.
type QuotaResetter interface {
	ResetMetrics()
}

// Config holds the job schedules in standard cron syntax or descriptors such
// as "@every 1m". An empty spec disables the job.
type Config struct {
	RefreshSpec    string
	QuotaResetSpec string
	// Timezone the quota reset is evaluated in. The provider resets quotas at
	// midnight Pacific time.
	Timezone string
	// RefreshTimeout bounds one warm-up. A tick within the cache TTL returns
	// the cached list without a pass.
	RefreshTimeout time.Duration
}

// DefaultConfig provides defaults.
var DefaultConfig = Config{
	RefreshSpec:    "@every 1m",
	QuotaResetSpec: "0 0 * * *",
	Timezone:       "America/Los_Angeles",
	RefreshTimeout: 30 * time.Second,
}

type Scheduler struct {
	cron           *rcron.Cron
	warmer         Warmer
	resetter       QuotaResetter
	logger         *slog.Logger
	refreshTimeout time.Duration

	refresh rcron.Schedule
	reset   rcron.Schedule
	ctx     context.Context
}

func New(cfg Config, warmer Warmer, resetter QuotaResetter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "scheduler")

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultConfig.RefreshTimeout
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: rcron.New(
			rcron.WithLocation(loc),
			rcron.WithLogger(cl),
			rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
		),
		warmer:         warmer,
		resetter:       resetter,
		logger:         logger,
		refreshTimeout: timeout,
		ctx:            context.Background(),
	}

	var err error
	if s.refresh, err = s.add(cfg.RefreshSpec, warmer != nil, s.runWarmup); err != nil {
		return nil, fmt.Errorf("refresh schedule: %w", err)
	}
	if s.reset, err = s.add(cfg.QuotaResetSpec, resetter != nil, s.RunQuotaReset); err != nil {
		return nil, fmt.Errorf("quota reset schedule: %w", err)
	}
	return s, nil
}

func (s *Scheduler) add(spec string, enabled bool, job func()) (rcron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || !enabled {
		return nil, nil
	}
	schedule, err := rcron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	s.cron.Schedule(schedule, rcron.FuncJob(job))
	return schedule, nil
}

// Start runs the jobs in the background until Stop or until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunWarmup makes sure the cached channel list is fresh. The adaptive TTL of
// the cache decides whether a pass runs.
func (s *Scheduler) RunWarmup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()
	start := time.Now()
	channels := s.warmer.Resolve(ctx)
	s.logger.Debug("channel list warmed",
		slog.Int("count", len(channels)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (s *Scheduler) runWarmup() {
	if s.ctx.Err() != nil {
		return
	}
	s.RunWarmup(s.ctx)
}

// RunQuotaReset zeroes the quota counters.
func (s *Scheduler) RunQuotaReset() {
	s.resetter.ResetMetrics()
	s.logger.Info("daily quota counters reset")
}

// NextQuotaReset returns when the quota reset next fires after t, or the
// zero time when it is disabled.
func (s *Scheduler) NextQuotaReset(t time.Time) time.Time {
	if s.reset == nil {
		return time.Time{}
	}
	return s.reset.Next(t.In(s.cron.Location()))
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
