// Package retry resubmits operations that failed with a transient error,
// waiting an exponentially growing backoff between attempts.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the backoff after each retry. Default: 2.0
	BackoffFactor float64

	// Jitter adds up to one extra backoff of random delay.
	Jitter bool
}

// DefaultConfig suits resubmitting a database write.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// Backoff returns the wait before retry attempt (1-indexed), without jitter.
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.BackoffFactor
		if backoff >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// IsRetryableFunc reports whether err is worth another attempt.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do calls fn until it succeeds, returns an error isRetryable rejects, the
// retries are exhausted or ctx is done.
//
// Example:
//
//	n, err := retry.Do(ctx, retry.DefaultConfig(), postgres.IsTransient, nil, func() (int, error) {
//	    return countRows(ctx)
//	})
func Do[T any](ctx context.Context, cfg Config, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	result, err := fn()
	for attempt := 1; err != nil; attempt++ {
		if !isRetryable(err) {
			return zero, err
		}
		if attempt > cfg.MaxRetries {
			return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, err)
		}

		wait := cfg.Backoff(attempt)
		if cfg.Jitter && wait > 0 {
			wait += rand.N(wait)
		}
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
		case <-timer.C:
		}

		result, err = fn()
	}
	return result, nil
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, cfg Config, isRetryable IsRetryableFunc, onRetry OnRetryFunc, fn func() error) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
