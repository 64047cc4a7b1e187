package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestFixedInterval(t *testing.T) {
	cfg := FixedInterval(time.Second, 5*time.Second)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)

	assert.Equal(t, 1, FixedInterval(time.Second, 0).MaxAttempts)
	assert.Equal(t, 1, FixedInterval(0, time.Minute).MaxAttempts)
}

func TestPollUntil(t *testing.T) {
	t.Run("returns as soon as the condition holds", func(t *testing.T) {
		clock := &fakeClock{}
		calls := 0
		attempts, err := PollUntil(context.Background(), clock, FixedInterval(time.Second, 5*time.Second),
			func(ctx context.Context) (bool, error) {
				calls++
				return calls == 3, nil
			})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.sleeps)
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		clock := &fakeClock{}
		attempts, err := PollUntil(context.Background(), clock, FixedInterval(time.Second, 4*time.Second),
			func(ctx context.Context) (bool, error) { return false, nil })

		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 4, attempts)
		assert.Len(t, clock.sleeps, 3)
	})

	t.Run("condition error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		attempts, err := PollUntil(context.Background(), &fakeClock{}, DefaultRetryConfig,
			func(ctx context.Context) (bool, error) { return false, boom })

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context stops sleeping", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := PollUntil(ctx, &fakeClock{}, DefaultRetryConfig,
			func(ctx context.Context) (bool, error) { return false, nil })

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("exponential delays are capped", func(t *testing.T) {
		clock := &fakeClock{}
		cfg := RetryConfig{MaxAttempts: 6, InitialDelay: 2 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 2}
		lastErr := errors.New("not yet")

		err := RetryWithBackoff(context.Background(), clock, cfg, func(ctx context.Context) error { return lastErr })

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 6, exhausted.Attempts)
		assert.ErrorIs(t, err, lastErr)
		assert.Equal(t, []time.Duration{
			2 * time.Second, 4 * time.Second, 8 * time.Second, 15 * time.Second, 15 * time.Second,
		}, clock.sleeps)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), &fakeClock{}, DefaultRetryConfig, func(ctx context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		fatal := errors.New("fatal")
		calls := 0
		err := RetryWithBackoff(context.Background(), &fakeClock{}, DefaultRetryConfig, func(ctx context.Context) error {
			calls++
			return backoff.Permanent(fatal)
		})

		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})
}
