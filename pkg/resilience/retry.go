// Package resilience provides fault-tolerance primitives: exponential-backoff
// retry, a circuit breaker, and a context-based timeout wrapper. The search
// API client runs behind retry and a breaker; store-bound pipeline stages use
// the timeout wrapper.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Permanent marks an error as not worth retrying. Wrap validation failures
// with it so Retry gives up immediately.
var Permanent = errors.New("permanent failure")

// RetryConfig controls attempt count and backoff timing.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// normalized fills zero values with working defaults.
func (cfg RetryConfig) normalized() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = 0.1
	}
	return cfg
}

// nextDelay grows the backoff geometrically, caps it at MaxDelay, then
// spreads the sleep by the jitter fraction.
func (cfg RetryConfig) nextDelay(prev time.Duration) (delay, sleep time.Duration) {
	delay = time.Duration(float64(prev) * cfg.Multiplier)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(float64(delay) * cfg.JitterFraction * (2*rand.Float64() - 1))
	sleep = delay + jitter
	if sleep <= 0 {
		sleep = cfg.InitialDelay
	}
	return delay, sleep
}

// Retry runs fn up to MaxAttempts times with exponential backoff and jitter.
// It stops early on context cancellation or a Permanent error.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.normalized()
	logger := slog.Default().With("component", "retry", "operation", name)

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if errors.Is(lastErr, Permanent) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		var sleep time.Duration
		if attempt == 1 {
			sleep = delay
		} else {
			delay, sleep = cfg.nextDelay(delay)
		}
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr,
			"next_delay", sleep,
		)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
}
