package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/progression/internal/domain"
)

// RetryConfig bounds the read-compute-write loop used for every ledger write.
type RetryConfig struct {
	// MaxAttempts counts the first try (default: 3)
	MaxAttempts int

	// InitialDelay before the second attempt (default: 10ms)
	InitialDelay time.Duration

	// MaxDelay caps exponential backoff (default: 200ms)
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the standard conflict retry bounds
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = max(d.MaxDelay, c.InitialDelay)
	}
	return c
}

// retryOnConflict runs attempt until it succeeds, fails with a non-conflict
// error, or the attempt bound is reached. Each attempt must re-read the record
// so a concurrent writer's value is folded in; only conflicts are retried.
func retryOnConflict[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, attempt func(ctx context.Context) (T, error)) (T, error) {
	r := retry.New[T](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   domain.IsConflict,
	})

	var (
		tries   int
		lastErr error
	)
	result, err := r.Do(ctx, func(ctx context.Context) (T, error) {
		tries++
		v, err := attempt(ctx)
		lastErr = err
		if err != nil && domain.IsConflict(err) {
			conflictRetries.WithLabelValues(op).Inc()
			logger.Debug("ledger write conflict", "op", op, "attempt", tries, "error", err)
		}
		return v, err
	})
	if err == nil {
		return result, nil
	}

	var zero T
	switch {
	case lastErr != nil && !domain.IsConflict(lastErr):
		return zero, lastErr
	case ctx.Err() != nil:
		return zero, ctx.Err()
	case lastErr == nil:
		return zero, err
	}

	conflictExhausted.WithLabelValues(op).Inc()
	logger.Warn("ledger conflict retries exhausted", "op", op, "attempts", tries)
	return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrConflictExhausted, tries, lastErr)
}
