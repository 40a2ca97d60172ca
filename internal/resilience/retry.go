package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pulsefeed/internal/logger"
)

// RetryConfig tunes the retry-with-backoff executor. Backoff delay is
// min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay) plus jitter up to
// Jitter of that value, so concurrent sessions don't retry in lockstep.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	Jitter            float64
	PerAttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffFactor:     2,
		Jitter:            0.3,
		PerAttemptTimeout: 30 * time.Second,
	}
}

// Result is the outcome of a retried operation. A final failure is a
// result carrying the last error, not a panic or sentinel: callers get
// the attempt count and elapsed time either way.
type Result[T any] struct {
	Value    T
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (r Result[T]) Failed() bool {
	return r.Err != nil
}

// retryable is implemented by errors that know whether they are
// transient (provider errors carry their own classification).
type retryable interface {
	Retryable() bool
}

// DefaultRetryable retries network-level errors and transient provider
// classifications (5xx/429). Everything else, credential errors
// included, fails immediately.
func DefaultRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Execute runs op with per-attempt timeouts and exponential backoff
// between attempts. shouldRetry nil means DefaultRetryable.
func Execute[T any](ctx context.Context, cfg RetryConfig, log *logger.Logger, name string, shouldRetry func(error) bool, op func(ctx context.Context) (T, error)) Result[T] {
	if shouldRetry == nil {
		shouldRetry = DefaultRetryable
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = cfg.BackoffFactor
	bo.MaxInterval = cfg.MaxDelay
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not wall time
	bo.Reset()

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
		value, err := op(attemptCtx)
		cancel()

		if err == nil {
			return Result[T]{Value: value, Attempts: attempt, Elapsed: time.Since(start)}
		}
		lastErr = err

		if !shouldRetry(err) || attempt == cfg.MaxAttempts {
			return Result[T]{Attempts: attempt, Elapsed: time.Since(start), Err: lastErr}
		}

		delay := bo.NextBackOff()
		log.Warnf("%s attempt %d/%d failed, retrying in %s: %v", name, attempt, cfg.MaxAttempts, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result[T]{Attempts: attempt, Elapsed: time.Since(start), Err: ctx.Err()}
		}
	}

	// Unreachable: the loop always returns from inside.
	return Result[T]{Attempts: cfg.MaxAttempts, Elapsed: time.Since(start), Err: lastErr}
}
