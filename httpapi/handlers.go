package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/quota"
)

// quotaSummary is the quota block of the metrics endpoint.
type quotaSummary struct {
	Used         int64                  `json:"used"`
	Requests     int64                  `json:"requests"`
	Errors       int64                  `json:"errors"`
	CircuitOpen  bool                   `json:"circuitOpen"`
	CircuitTrips int64                  `json:"circuitTrips"`
	ResetDelay   string                 `json:"resetDelay"`
	Uptime       float64                `json:"uptime"`
	LastReset    time.Time              `json:"lastReset"`
	RateLimiter  quota.RateLimiterStats `json:"rateLimiter"`
}

type metricsResponse struct {
	Quota     quotaSummary `json:"quota"`
	Cache     cache.Stats  `json:"cache"`
	Timestamp time.Time    `json:"timestamp"`
}

// listStreamers always answers 200; the list may be stale or empty.
func (h *Handler) listStreamers(w http.ResponseWriter, r *http.Request) {
	if h.cache.Has(h.cacheKey) {
		w.Header().Set("X-Cache-Status", "HIT")
	} else {
		w.Header().Set("X-Cache-Status", "MISS")
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.resolveTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, h.resolver.Resolve(ctx))
}

func (h *Handler) quotaMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.quota.Metrics())
}

func (h *Handler) streamerMetrics(w http.ResponseWriter, _ *http.Request) {
	m := h.quota.Metrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		Quota: quotaSummary{
			Used:         m.QuotaUsed,
			Requests:     m.RequestsMade,
			Errors:       m.ErrorCount,
			CircuitOpen:  m.IsCircuitOpen,
			CircuitTrips: m.CircuitTrips,
			ResetDelay:   m.ResetDelay,
			Uptime:       m.Uptime,
			LastReset:    m.LastReset,
			RateLimiter:  m.RateLimiter,
		},
		Cache:     h.cache.Stats(),
		Timestamp: h.now().UTC(),
	})
}

func (h *Handler) closeCircuit(w http.ResponseWriter, r *http.Request) {
	h.quota.CloseCircuit()
	h.logger.InfoContext(r.Context(), "circuit closed by admin", slog.String("admin", adminFromContext(r.Context())))
	writeMessage(w, http.StatusOK, "circuit closed")
}

func (h *Handler) resetQuota(w http.ResponseWriter, r *http.Request) {
	h.quota.ResetMetrics()
	h.logger.InfoContext(r.Context(), "quota metrics reset by admin", slog.String("admin", adminFromContext(r.Context())))
	writeMessage(w, http.StatusOK, "quota metrics reset")
}

func (h *Handler) refreshStreamers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.resolveTimeout)
	defer cancel()
	channels := h.resolver.Refresh(ctx)
	h.logger.InfoContext(r.Context(), "streamers refreshed by admin", slog.String("admin", adminFromContext(r.Context())), slog.Int("count", len(channels)))
	writeSuccess(w, http.StatusOK, channels)
}
