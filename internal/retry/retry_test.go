package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		JitterMax:   time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		attempts int
	}{
		{name: "one failure", failures: 1, attempts: 3},
		{name: "two failures", failures: 2, attempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastPolicy(tt.attempts).Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return errors.New("transient")
				}
				return nil
			})

			assert.NoError(t, err)
			assert.Equal(t, tt.failures+1, calls)
		})
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Attempts)
	assert.ErrorIs(t, err, boom)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := Policy{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Пауза перед попыткой k+1 лежит в [BaseDelay*2^(k-1),
// BaseDelay*2^(k-1) + JitterMax]; верхнюю границу проверяем с запасом
// на планировщик
func TestDoDelayStaysWithinJitterBounds(t *testing.T) {
	const (
		base   = 50 * time.Millisecond
		jitter = 25 * time.Millisecond
		slack  = 100 * time.Millisecond
	)
	p := Policy{MaxAttempts: 3, BaseDelay: base, JitterMax: jitter}

	var attempts []time.Time
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts = append(attempts, time.Now())
		return errors.New("transient")
	})

	require.Error(t, err)
	require.Len(t, attempts, 3)

	for k := 1; k < len(attempts); k++ {
		gap := attempts[k].Sub(attempts[k-1])
		lower := base << (k - 1)

		assert.GreaterOrEqual(t, gap, lower, "attempt %d", k+1)
		assert.Less(t, gap, lower+jitter+slack, "attempt %d", k+1)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 0}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
