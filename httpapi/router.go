// Package httpapi serves the resolved channel list, the quota metrics and the
// admin controls over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/channel"
	"github.com/spdeepak/livewatch/quota"
)

// Resolver produces the channel list. *livewatch.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context) []channel.Channel
	Refresh(ctx context.Context) []channel.Channel
}

// Governor exposes quota governance. *quota.Client implements it.
type Governor interface {
	Metrics() quota.Metrics
	CloseCircuit()
	ResetMetrics()
}

// CacheInspector reports on the result cache. *cache.ResultCache implements it.
type CacheInspector interface {
	Stats() cache.Stats
	Has(key string) bool
}

// Dependencies wires a Handler.
type Dependencies struct {
	Resolver Resolver
	Quota    Governor
	Cache    CacheInspector
	// CacheKey is the aggregate key the resolver caches under.
	CacheKey string
	// Auth gates the admin routes. Nil denies them all.
	Auth   *AdminAuth
	Logger *slog.Logger
	// ResolveTimeout bounds how long a request waits for a resolution pass.
	ResolveTimeout time.Duration
}

type Handler struct {
	resolver       Resolver
	quota          Governor
	cache          CacheInspector
	cacheKey       string
	auth           *AdminAuth
	logger         *slog.Logger
	resolveTimeout time.Duration
	now            func() time.Time
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.ResolveTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{
		resolver:       deps.Resolver,
		quota:          deps.Quota,
		cache:          deps.Cache,
		cacheKey:       deps.CacheKey,
		auth:           deps.Auth,
		logger:         logger.With("module", "http"),
		resolveTimeout: timeout,
		now:            time.Now,
	}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(handler.recoverMiddleware)
	r.Use(handler.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })

	r.Route("/api", func(r chi.Router) {
		r.Get("/streamers", handler.listStreamers)
		r.Get("/streamers/metrics", handler.streamerMetrics)
		r.Get("/quota", handler.quotaMetrics)

		r.Route("/admin", func(r chi.Router) {
			r.Use(handler.adminMiddleware)
			r.Post("/circuit/close", handler.closeCircuit)
			r.Post("/quota/reset", handler.resetQuota)
			r.Post("/streamers/refresh", handler.refreshStreamers)
		})
	})
	return r
}
