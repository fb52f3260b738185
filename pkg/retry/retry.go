// Package retry implements bounded retries with exponential backoff and
// jitter. Two callers in PMCraft Hub: the LLM scoring client and the
// optimistic-concurrency loop around progress writes.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryableError marks an error as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so Do retries it. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries the retryable marker.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// PermanentError marks an error as final regardless of remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Config holds backoff tuning.
type Config struct {
	// MaxAttempts counts the first call too.
	MaxAttempts int

	// InitialDelay is the pause before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// Jitter randomizes each delay by +-(Jitter * delay). Keeps a burst
	// of conflicting writers from retrying in lockstep.
	Jitter float64

	// OnRetry is called before each sleep, for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
}

// Retrier executes operations under one backoff policy.
type Retrier struct {
	cfg Config
}

// New creates a Retrier.
func New(cfg Config) *Retrier {
	cfg.applyDefaults()
	return &Retrier{cfg: cfg}
}

// EvaluatorRetrier is tuned for LLM scoring calls: generous delays so a
// rate-limited provider is not hammered.
func EvaluatorRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	})
}

// ConflictRetrier is tuned for optimistic-concurrency conflicts on a
// progress document. Short delays: a conflict means another event for the
// same user just committed, so the re-read succeeds almost immediately.
func ConflictRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0.2,
	})
}

// Do runs op until it succeeds, returns a permanent error, returns an
// unmarked error, or the attempt budget runs out. Marker wrappers are
// stripped from the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= r.cfg.MaxAttempts {
			return errors.Unwrap(err)
		}

		delay := r.backoff(attempt)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
}

// backoff computes the delay after the given attempt number.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= r.cfg.Multiplier
		if d >= float64(r.cfg.MaxDelay) {
			d = float64(r.cfg.MaxDelay)
			break
		}
	}

	if r.cfg.Jitter > 0 {
		d += d * r.cfg.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}
