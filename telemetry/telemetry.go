// Package telemetry exports quota governance and cache state as
// OpenTelemetry gauges.
package telemetry

import (
	"context"

	"github.com/spdeepak/livewatch/cache"
	"github.com/spdeepak/livewatch/quota"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
)

const ScopeName = "github.com/spdeepak/livewatch"

// QuotaSource reports quota metrics. *quota.Client implements it.
type QuotaSource interface {
	Metrics() quota.Metrics
}

// CacheSource reports cache stats. *cache.ResultCache implements it.
type CacheSource interface {
	Stats() cache.Stats
}

type gauges struct {
	quotaUsed      metric.Int64ObservableGauge
	requests       metric.Int64ObservableGauge
	errors         metric.Int64ObservableGauge
	trips          metric.Int64ObservableGauge
	circuitOpen    metric.Int64ObservableGauge
	windowRequests metric.Int64ObservableGauge
	cacheEntries   metric.Int64ObservableGauge
	cacheValid     metric.Int64ObservableGauge
}

// Register creates the gauges on meter and observes q and c on every
// collection. Unregister the returned registration on shutdown.
func Register(meter metric.Meter, q QuotaSource, c CacheSource) (metric.Registration, error) {
	var (
		g   gauges
		err error
	)
	gauge := func(name, desc, unit string) metric.Int64ObservableGauge {
		inst, instErr := meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
		err = multierr.Append(err, instErr)
		return inst
	}
	g.quotaUsed = gauge("livewatch.quota.used", "Quota units spent since the last reset.", "{unit}")
	g.requests = gauge("livewatch.quota.requests", "Provider requests made since the last reset.", "{request}")
	g.errors = gauge("livewatch.quota.errors", "Provider errors since the last reset.", "{error}")
	g.trips = gauge("livewatch.circuit.trips", "Circuit breaker trips since start.", "{trip}")
	g.circuitOpen = gauge("livewatch.circuit.open", "1 while the circuit breaker blocks provider calls.", "1")
	g.windowRequests = gauge("livewatch.ratelimiter.window_requests", "Requests in the current rate limiter window.", "{request}")
	g.cacheEntries = gauge("livewatch.cache.entries", "Entries held by the result cache.", "{entry}")
	g.cacheValid = gauge("livewatch.cache.valid_entries", "Unexpired entries held by the result cache.", "{entry}")
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		m := q.Metrics()
		o.ObserveInt64(g.quotaUsed, m.QuotaUsed)
		o.ObserveInt64(g.requests, m.RequestsMade)
		o.ObserveInt64(g.errors, m.ErrorCount)
		o.ObserveInt64(g.trips, m.CircuitTrips)
		o.ObserveInt64(g.circuitOpen, boolToInt(m.IsCircuitOpen))
		o.ObserveInt64(g.windowRequests, int64(m.RateLimiter.RequestsInWindow))

		s := c.Stats()
		o.ObserveInt64(g.cacheEntries, int64(s.Size))
		o.ObserveInt64(g.cacheValid, int64(s.ValidEntries))
		return nil
	},
		g.quotaUsed, g.requests, g.errors, g.trips, g.circuitOpen,
		g.windowRequests, g.cacheEntries, g.cacheValid,
	)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
