package gstcam

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds the attempts made to bring a pipeline to PLAYING
type RetryConfig struct {
	MaxRetries    int           // Retries after the first attempt (default: 3)
	RetryDelay    time.Duration // Initial retry delay (default: 250ms)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 2s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryDelay:    250 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
	}
}

// attemptFunc performs one attempt
type attemptFunc func(ctx context.Context) error

// runWithRetry executes fn until it succeeds, fails with a non-retryable
// category, exhausts cfg.MaxRetries, or ctx is done.
//
// Backoff doubles from RetryDelay and is capped at MaxRetryDelay. Returns the
// last attempt's error, wrapped when retries are exhausted.
func runWithRetry(ctx context.Context, fn attemptFunc, cfg RetryConfig) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("gstcam: pipeline started after retry", "attempts", attempt+1)
			}
			return nil
		}

		category := categoryOf(err)
		if !category.Retryable() || ctx.Err() != nil {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("gstcam: max retries exceeded (%d attempts): %w", attempt+1, err)
		}

		delay := calculateBackoff(attempt+1, cfg)
		slog.Warn("gstcam: retrying pipeline start",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"category", category.String(),
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
