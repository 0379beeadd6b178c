package infra

import (
	"context"
	"log/slog"
	"time"
)

const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// connectWithRetry calls connect up to connectAttempts times, doubling the
// delay after each failure. It returns the last error.
func connectWithRetry(ctx context.Context, logger *slog.Logger, name string, connect func(context.Context) error) error {
	delay := connectDelay
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if lastErr = connect(ctx); lastErr == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		logger.Warn("connection attempt failed",
			slog.String("backend", name),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
