package resilience

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/model"
)

// BreakerConfig tunes one named circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold uint32
	// RecoveryTimeout is how long the circuit stays open before a single
	// probe call is allowed through.
	RecoveryTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// BreakerRegistry holds one circuit breaker per external service name.
// Built once at startup and injected; breaker state is shared across all
// users so a provider-wide outage sheds load for everyone.
type BreakerRegistry struct {
	logger *logger.Logger

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewBreakerRegistry(log *logger.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		logger:   log.With("component", "breaker"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Register creates the breaker for a service name. Registering the same
// name twice replaces the breaker and resets its state.
func (r *BreakerRegistry) Register(name string, cfg BreakerConfig) {
	log := r.logger
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // a single probe call in half-open
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("circuit %s: %s -> %s", name, from, to)
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	r.mu.Lock()
	r.breakers[name] = cb
	r.mu.Unlock()
	metrics.BreakerState.WithLabelValues(name).Set(0)
}

func (r *BreakerRegistry) breaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.RLock()
	cb := r.breakers[name]
	r.mu.RUnlock()
	return cb
}

// Execute runs op through the named breaker. While the circuit is open
// the call fails fast with CircuitOpenError without invoking op. An
// unregistered name runs op unguarded.
func (r *BreakerRegistry) Execute(name string, op func() (any, error)) (any, error) {
	cb := r.breaker(name)
	if cb == nil {
		return op()
	}

	result, err := cb.Execute(op)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.BreakerRejections.WithLabelValues(name).Inc()
			return nil, &model.CircuitOpenError{Service: name}
		}
		return nil, err
	}
	return result, nil
}

// State returns the current state name for a service, "unknown" if the
// service was never registered.
func (r *BreakerRegistry) State(name string) string {
	cb := r.breaker(name)
	if cb == nil {
		return "unknown"
	}
	return cb.State().String()
}

// States returns the state of every registered breaker.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}

// Guard runs a typed operation through the registry.
func Guard[T any](r *BreakerRegistry, name string, op func() (T, error)) (T, error) {
	var zero T
	result, err := r.Execute(name, func() (any, error) {
		return op()
	})
	if err != nil {
		return zero, err
	}
	value, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return value, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
