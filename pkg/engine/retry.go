package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/errors"
)

// SleepFunc waits for the given duration or until the context is cancelled.
// Tests inject a fake to observe delays without real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy wraps a single page fetch with bounded exponential backoff.
// Transient failures (5xx, 429, timeouts, connection errors) are retried up
// to MaxAttempts total attempts; fatal failures propagate immediately.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	Sleep   SleepFunc
	OnRetry func(attempt int, err error)

	logger *zap.Logger
}

// NewRetryPolicy returns the default policy: 3 attempts, 2s initial delay
// doubling between attempts.
func NewRetryPolicy(logger *zap.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Sleep:        sleepContext,
		logger:       logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn until it succeeds, fails fatally, or the attempt budget is
// exhausted. The last error is returned terminal on exhaustion.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "job cancelled")
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		if p.logger != nil {
			p.logger.Warn("transient failure, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		if err := sleep(ctx, delay); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "job cancelled during backoff")
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}
