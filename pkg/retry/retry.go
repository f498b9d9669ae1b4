package retry

import (
	"context"
	"time"

	"igdownloader/pkg/logger"
)

// DefaultMaxAttempts is the attempt budget used when none is configured
const DefaultMaxAttempts = 3

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// SleepFunc pauses between attempts. It returns early with an error if ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf decides whether an error is worth another attempt. Nil retries everything.
	RetryIf func(error) bool
	// OnRetry is called before each sleep
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep replaces the real timer, mainly for tests
	Sleep SleepFunc
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig retries every error three times with 1s then 2s of backoff
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultExponentialBackoff(),
		Sleep:       Wait,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.Backoff == nil {
		out.Backoff = DefaultExponentialBackoff()
	}
	if out.Sleep == nil {
		out.Sleep = Wait
	}
	if out.Logger == nil {
		out.Logger = logger.NewNopLogger()
	}
	return &out
}

// Do runs op up to MaxAttempts times. There is no sleep after the final attempt,
// and the error of the final attempt is returned as is.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
				"error": lastErr.Error(),
			})
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        lastErr.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := cfg.Sleep(ctx, delay); err != nil {
			cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  err.Error(),
			})
			return lastErr
		}
	}

	cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
		"attempts":   cfg.MaxAttempts,
		"last_error": lastErr.Error(),
	})
	return lastErr
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)

	return result, err
}
