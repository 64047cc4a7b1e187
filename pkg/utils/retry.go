package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock is the time source used by the poll helpers
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RetryConfig is the timing policy of a bounded poll or retry loop.
// Multiplier <= 1 means a fixed interval.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig is the default retry policy
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

// ErrRetriesExhausted is matched by errors.Is on every ExhaustedError
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned when the attempt budget runs out
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("gave up after %d attempts", e.Attempts)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.LastErr}
}

// FixedInterval polls every interval for at most timeout (at least one attempt)
func FixedInterval(interval, timeout time.Duration) RetryConfig {
	attempts := 1
	if interval > 0 {
		attempts = int(timeout / interval)
	}
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: interval,
		MaxDelay:     interval,
		Multiplier:   1,
	}
}

// NewBackOff builds the backoff.BackOff for cfg. Randomization is disabled so delays are predictable.
func (c RetryConfig) NewBackOff(clock Clock) backoff.BackOff {
	var b backoff.BackOff
	if c.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(c.InitialDelay)
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.InitialDelay
		exp.RandomizationFactor = 0
		exp.Multiplier = c.Multiplier
		exp.MaxInterval = c.MaxDelay
		exp.MaxElapsedTime = 0
		if clock != nil {
			exp.Clock = clock
		}
		b = exp
	}

	retries := c.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b = backoff.WithMaxRetries(b, uint64(retries))
	b.Reset()
	return b
}

// PollUntil calls condition until it reports done, returns an error, or the attempt budget is spent.
// An error from condition aborts the loop immediately. It returns the number of attempts made.
func PollUntil(ctx context.Context, clock Clock, cfg RetryConfig, condition func(ctx context.Context) (bool, error)) (int, error) {
	b := cfg.NewBackOff(clock)

	for attempt := 1; ; attempt++ {
		done, err := condition(ctx)
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return attempt, &ExhaustedError{Attempts: attempt}
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
}

// RetryWithBackoff retries operation until it succeeds or the attempt budget is spent.
// Errors wrapped with backoff.Permanent stop the loop.
func RetryWithBackoff(ctx context.Context, clock Clock, cfg RetryConfig, operation func(ctx context.Context) error) error {
	var lastErr error
	attempts, err := PollUntil(ctx, clock, cfg, func(ctx context.Context) (bool, error) {
		lastErr = operation(ctx)
		if lastErr == nil {
			return true, nil
		}
		var permanent *backoff.PermanentError
		if errors.As(lastErr, &permanent) {
			return false, permanent.Err
		}
		return false, nil
	})
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return &ExhaustedError{Attempts: attempts, LastErr: lastErr}
	}
	return err
}
