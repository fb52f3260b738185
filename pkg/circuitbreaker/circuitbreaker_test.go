package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return errUpstream
		})
	}
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error {
		return nil
	})
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3, Cooldown: time.Hour})

	failN(cb, 2)
	assert.Equal(t, StateClosed, cb.State())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())

	// Пока открыт - вызовы отбрасываются, fn не вызывается
	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecute_SuccessResetsFailureWindow(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3, Cooldown: time.Hour})

	failN(cb, 2)
	require.NoError(t, succeed(cb))

	// Окно сброшено: двух новых сбоев недостаточно
	failN(cb, 2)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         10 * time.Millisecond,
		MaxProbes:        2,
	})

	failN(cb, 1)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, succeed(cb))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_FailedProbeReopens(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
	})

	failN(cb, 1)
	time.Sleep(15 * time.Millisecond)

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecute_ProbeBudget(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 5,
		Cooldown:         time.Millisecond,
		MaxProbes:        1,
	})

	failN(cb, 1)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, succeed(cb))
	require.Equal(t, StateHalfOpen, cb.State())

	// Бюджет проб исчерпан до закрытия
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New(Config{
		Name:             "evaluator",
		FailureThreshold: 1,
		Cooldown:         time.Hour,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	failN(cb, 1)
	cb.Reset()
	failN(cb, 1)

	assert.Equal(t, []string{"closed->open", "closed->open"}, transitions)
}

func TestIsFailureClassifier(t *testing.T) {
	benign := errors.New("not found")
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		Cooldown:         time.Hour,
		IsFailure:        func(err error) bool { return !errors.Is(err, benign) },
	})

	// Ошибка есть, но классификатор её не считает сбоем
	_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(context.Background(), func(context.Context) error { return errUpstream })
	assert.Equal(t, StateOpen, cb.State())
}
