package quota

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BreakerState is a snapshot of the circuit breaker.
type BreakerState struct {
	Open bool
	// Trips counts every Closed→Open transition since start.
	Trips int64
	// CurrentBackoff is the delay the next trip will use.
	CurrentBackoff time.Duration
	// OpenUntil is zero while closed.
	OpenUntil time.Time
}

// CircuitBreaker blocks provider calls after a quota exhaustion. It closes by
// itself once the backoff delay has elapsed; the deadline is evaluated lazily
// so no timer outlives the breaker. Each Closed to Open transition backs off
// exponentially up to a ceiling, and only Close resets the delay to its floor.
type CircuitBreaker struct {
	mu        sync.RWMutex
	open      bool
	openUntil time.Time
	trips     int64
	backoff   *backoff.ExponentialBackOff
	now       func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(initial, ceiling time.Duration, multiplier float64) *CircuitBreaker {
	if initial <= 0 {
		initial = DefaultConfig.InitialBackoff
	}
	if ceiling < initial {
		ceiling = initial
	}
	if multiplier < 1 {
		multiplier = DefaultConfig.BackoffMultiplier
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         ceiling,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return &CircuitBreaker{backoff: b, now: time.Now}
}

// IsOpen reports whether calls are blocked. It has no side effects.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.isOpenLocked(cb.now())
}

func (cb *CircuitBreaker) isOpenLocked(now time.Time) bool {
	return cb.open && now.Before(cb.openUntil)
}

// Trip opens a closed circuit for the current backoff delay and grows the
// delay for the next trip. It returns how long the circuit stays open and
// whether this call opened it. Tripping an open circuit, e.g. by calls that
// were already in flight, changes nothing.
func (cb *CircuitBreaker) Trip() (time.Duration, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.isOpenLocked(now) {
		return cb.openUntil.Sub(now), false
	}

	cb.trips++
	delay := cb.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = cb.backoff.MaxInterval
	}
	cb.open = true
	cb.openUntil = now.Add(delay)
	return delay, true
}

// Close closes the circuit immediately and resets the backoff to its floor.
func (cb *CircuitBreaker) Close() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.open = false
	cb.openUntil = time.Time{}
	cb.backoff.Reset()
}

// State returns a snapshot of the breaker.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	state := BreakerState{
		Open:           cb.isOpenLocked(cb.now()),
		Trips:          cb.trips,
		CurrentBackoff: cb.peekBackoff(),
	}
	if state.Open {
		state.OpenUntil = cb.openUntil
	}
	return state
}

// peekBackoff returns the next delay without advancing the sequence. Caller
// must hold lock.
func (cb *CircuitBreaker) peekBackoff() time.Duration {
	next := *cb.backoff
	return next.NextBackOff()
}
