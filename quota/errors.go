package quota

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned without touching the provider while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("quota circuit breaker is open")
	// ErrNotConfigured is returned when no provider credential is configured.
	ErrNotConfigured = errors.New("status provider is not configured")
	// ErrQuotaExhausted matches a ProviderError of kind KindQuotaExhausted.
	ErrQuotaExhausted = errors.New("provider quota exhausted")
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	// KindTransient covers network failures, malformed responses and
	// unrelated 4xx/5xx answers. Counted, never opens the circuit.
	KindTransient ErrorKind = iota
	// KindQuotaExhausted is the provider's documented quota signature.
	KindQuotaExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExhausted:
		return "quota_exhausted"
	default:
		return "transient"
	}
}

// ProviderError is the single shape provider adapters return. Classification
// happens once, where the provider is called.
type ProviderError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Reason     string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d, reason %q): %v", e.Op, e.Kind, e.StatusCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrQuotaExhausted) match quota failures.
func (e *ProviderError) Is(target error) bool {
	return target == ErrQuotaExhausted && e.Kind == KindQuotaExhausted
}

// IsQuotaExhausted reports whether err carries the quota signature.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}
