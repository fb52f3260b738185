package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(attempts int) *Retrier {
	return New(Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("no such row")

	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})

	// Маркер снимается: наружу выходит исходная ошибка
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestDo_UnmarkedErrorNotRetried(t *testing.T) {
	sentinel := errors.New("plain failure")

	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still down")

	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(sentinel)
	})

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sentinel := errors.New("interrupted")
	err := fastRetrier(10).Do(ctx, func(context.Context) error {
		cancel()
		return Retryable(sentinel)
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "interrupted")
}

func TestMarkers(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, Permanent(nil))

	base := errors.New("boom")
	assert.True(t, IsRetryable(Retryable(base)))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.False(t, IsRetryable(base))

	// errors.Is проходит сквозь маркеры
	assert.ErrorIs(t, Retryable(base), base)
}

func TestBackoff_CappedAndGrowing(t *testing.T) {
	r := New(Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	})

	assert.Equal(t, 10*time.Millisecond, r.backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.backoff(2))
	assert.Equal(t, 40*time.Millisecond, r.backoff(3))
	assert.Equal(t, 40*time.Millisecond, r.backoff(10))
}
