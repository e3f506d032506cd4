// Package retry runs operations again with exponential backoff when they
// fail with a transient status.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/fsbridge/fsbridge/pkg/status"
)

// Config defines retry behavior. Zero values fall back to the defaults
// applied by New.
type Config struct {
	// MaxAttempts bounds the total number of attempts, the first included.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay after each attempt.
	Multiplier float64

	// Jitter randomizes each delay to spread out synchronized retries.
	Jitter bool

	// OnRetry is called before each retry with the attempt number just
	// failed, its error, and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retryer applies one Config to operations.
type Retryer struct {
	config Config
}

// New returns a Retryer, filling defaults for zero config values.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, fails with a non-retryable status, or the
// attempt budget is spent. Only ResourceUnavailable outcomes are retried;
// everything else, cancellation included, returns immediately. A nil
// Retryer runs fn once.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return status.Newf(status.OperationCanceled, "canceled before attempt %d", attempt)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == r.config.MaxAttempts {
			return lastErr
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, lastErr, delay)
		}
		select {
		case <-ctx.Done():
			return status.Newf(status.OperationCanceled, "canceled after %d attempts", attempt)
		case <-time.After(delay):
		}
	}
	return lastErr
}

func retryable(err error) bool {
	return errors.Is(err, status.New(status.ResourceUnavailable, ""))
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d *= 0.5 + rand.Float64()/2
	}
	return time.Duration(d)
}
