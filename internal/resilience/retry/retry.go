// Package retry provides bounded retry with a fixed delay between attempts.
// It decouples retry policy from the session manager's control flow so the
// policy can be tested independently.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"socialpub/pkg/config"
)

// Config holds the configuration for fixed-delay retry logic.
type Config struct {
	// MaxAttempts is the total attempt budget, including the first call
	MaxAttempts int

	// Delay is the fixed wait between attempts; it does not grow
	Delay time.Duration
}

// SessionRefreshConfig returns the policy applied around session-refresh
// network calls: one initial attempt plus two retries, with a fixed pause
// in between.
//
// Environment variables:
//   - SESSION_REFRESH_ATTEMPTS: Total attempt count (default: 3)
//   - SESSION_REFRESH_DELAY: Pause between attempts (default: 5s)
func SessionRefreshConfig() Config {
	return Config{
		MaxAttempts: config.GetEnvInt("SESSION_REFRESH_ATTEMPTS", 3),
		Delay:       config.GetEnvDuration("SESSION_REFRESH_DELAY", 5*time.Second),
	}
}

// WithFixedDelay executes fn until it succeeds or the attempt budget is
// exhausted. Every returned error counts as a failed attempt; on success the
// remaining budget is not consumed. If all attempts fail the last error is
// wrapped and returned, and no partial state is committed by this layer.
// The wait between attempts respects context cancellation.
func WithFixedDelay(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", cfg.Delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(cfg.Delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}
