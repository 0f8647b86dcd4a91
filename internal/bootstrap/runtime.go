package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spdeepak/livewatch"
	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/channel"
	"github.com/spdeepak/livewatch/events"
	"github.com/spdeepak/livewatch/httpapi"
	"github.com/spdeepak/livewatch/postgres"
	"github.com/spdeepak/livewatch/quota"
	"github.com/spdeepak/livewatch/scheduler"
	"github.com/spdeepak/livewatch/telemetry"
	"github.com/spdeepak/livewatch/youtube"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
)

// Runtime holds the wired service.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	resolver   *livewatch.Resolver
	quota      *quota.Client
	results    *cache.ResultCache
	httpServer *http.Server
	scheduler  *scheduler.Scheduler

	// closers run in reverse order on Close.
	closers []func() error
}

// NewRuntime wires every component from cfg. Close releases what it opened,
// also when NewRuntime fails halfway.
func NewRuntime(ctx context.Context, cfg Config) (_ *Runtime, err error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	r := &Runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, r.Close())
		}
	}()

	repo, err := r.openRepository(ctx)
	if err != nil {
		return nil, err
	}
	store, err := r.openStore()
	if err != nil {
		return nil, err
	}
	publisher, err := r.openPublisher()
	if err != nil {
		return nil, err
	}

	var provider quota.Provider
	yt, err := youtube.New(ctx, youtube.Config{APIKey: cfg.YouTubeAPIKey})
	switch {
	case errors.Is(err, quota.ErrNotConfigured):
		logger.Warn("YOUTUBE_API_KEY not set, every channel is reported offline")
	case err != nil:
		return nil, err
	default:
		provider = yt
	}
	r.quota = quota.NewClient(provider, &quota.Config{
		MaxRequests:       cfg.RateLimitRequests,
		Window:            cfg.RateLimitWindow,
		InitialBackoff:    cfg.BreakerInitial,
		MaxBackoff:        cfg.BreakerMax,
		BackoffMultiplier: quota.DefaultConfig.BackoffMultiplier,
	}, quota.WithLogger(logger))

	r.results = cache.NewResultCache(store, &cache.Config{
		LiveTTL:    cfg.LiveTTL,
		OfflineTTL: cfg.OfflineTTL,
		MaxEntries: cfg.CacheMaxEntries,
	}).WithLogger(logger)

	resolverCfg := &livewatch.Config{
		LiveInterval:            cfg.LiveInterval,
		RecentlyOfflineInterval: cfg.RecentlyOfflineInterval,
		LongOfflineInterval:     cfg.LongOfflineInterval,
		RecentlyLiveWindow:      cfg.RecentlyLiveWindow,
		MaxConcurrency:          cfg.MaxConcurrency,
		AvatarBaseURL:           cfg.StorageBaseURL,
	}
	r.resolver = livewatch.NewResolver(repo, r.quota, r.results, resolverCfg,
		livewatch.WithLogger(logger),
		livewatch.WithPublisher(publisher),
	)

	reg, err := telemetry.Register(otel.GetMeterProvider().Meter(telemetry.ScopeName), r.quota, r.results)
	if err != nil {
		return nil, fmt.Errorf("register telemetry: %w", err)
	}
	r.closers = append(r.closers, reg.Unregister)

	r.scheduler, err = scheduler.New(scheduler.Config{
		RefreshSpec:    cfg.RefreshSpec,
		QuotaResetSpec: cfg.QuotaResetSpec,
		Timezone:       cfg.Timezone,
		RefreshTimeout: scheduler.DefaultConfig.RefreshTimeout,
	}, r.resolver, r.quota, logger)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewHandler(httpapi.Dependencies{
		Resolver:       r.resolver,
		Quota:          r.quota,
		Cache:          r.results,
		CacheKey:       livewatch.DefaultConfig.CacheKey,
		Auth:           httpapi.NewAdminAuth(cfg.JWTSecret, cfg.AdminEmails),
		Logger:         logger,
		ResolveTimeout: cfg.ResolveTimeout,
	})
	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return r, nil
}

func (r *Runtime) openRepository(ctx context.Context) (channel.Repository, error) {
	if r.cfg.DatabaseURL == "" {
		var seed []channel.Channel
		if r.cfg.SeedFile != "" {
			var err error
			if seed, err = channel.LoadSeed(r.cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		r.logger.Info("DATABASE_URL not set, using in-memory channels", slog.Int("channels", len(seed)))
		return channel.NewMemoryRepository(seed...), nil
	}

	db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return nil, err
	}
	return postgres.NewRepository(db), nil
}

func (r *Runtime) openStore() (cache.Store, error) {
	if r.cfg.RedisURL == "" {
		return cache.NewMemoryStore(r.cfg.CacheMaxEntries), nil
	}
	client, err := cache.Connect(r.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store := cache.NewRedisStore(client, 2*time.Second).WithLogger(r.logger)
	r.closers = append(r.closers, store.Close)
	return store, nil
}

func (r *Runtime) openPublisher() (events.Publisher, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		return events.NewLoggingPublisher(r.logger), nil
	}
	p, err := events.NewKafkaPublisher(r.cfg.KafkaBrokers, map[string]string{
		events.EventWentLive:    r.cfg.KafkaTopic,
		events.EventWentOffline: r.cfg.KafkaTopic,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, p.Close)
	return p, nil
}

// RunAPI serves HTTP and runs the scheduled jobs until ctx is done or the
// process receives SIGINT or SIGTERM.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.scheduler.Start(ctx)
	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server listening", slog.String("addr", r.httpServer.Addr))
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.Error("runtime failure", slog.Any("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runErr = multierr.Append(runErr, r.httpServer.Shutdown(shutdownCtx))
	r.scheduler.Stop()
	return multierr.Append(runErr, r.Close())
}

// ResolveOnce runs a single resolution pass and returns the result.
func (r *Runtime) ResolveOnce(ctx context.Context) []channel.Channel {
	return r.resolver.Resolve(ctx)
}

// Close releases connections opened by NewRuntime. It is safe to call more
// than once.
func (r *Runtime) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	r.closers = nil
	return err
}
