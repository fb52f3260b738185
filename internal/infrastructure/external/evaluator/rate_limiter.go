package evaluator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig tunes the outbound throttle of the scoring client.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate of the token bucket.
	RequestsPerSecond float64

	// BurstSize caps how many requests may fire back to back.
	BurstSize int

	// MinInterval spaces out consecutive requests even when the bucket
	// has tokens. LLM providers meter per-minute quotas, and a burst at
	// second zero still counts against the whole minute.
	MinInterval time.Duration

	// WaitTimeout bounds how long Allow blocks before giving up.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns conservative defaults for the scoring
// service. One analysis call per user action, so sustained rate stays low.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		MinInterval:       100 * time.Millisecond,
		WaitTimeout:       15 * time.Second,
	}
}

// RateLimiter throttles outbound requests with a token bucket
// (golang.org/x/time/rate) plus a minimum spacing between requests.
// A 429 from the service drains the bucket and widens the spacing.
type RateLimiter struct {
	cfg    RateLimiterConfig
	bucket *rate.Limiter

	mu          sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = def.BurstSize
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}

	return &RateLimiter{
		cfg:         cfg,
		bucket:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		minInterval: cfg.MinInterval,
		lastRequest: time.Now().Add(-cfg.MinInterval),
	}
}

// Allow blocks until the request may proceed. It fails with a RateLimitError
// when the wait budget runs out, or with the context error when the caller
// gives up first.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, rl.cfg.WaitTimeout)
	defer cancel()

	if err := rl.waitMinInterval(waitCtx); err != nil {
		return rl.classify(ctx, err)
	}
	if err := rl.bucket.Wait(waitCtx); err != nil {
		return rl.classify(ctx, err)
	}

	rl.mu.Lock()
	rl.lastRequest = time.Now()
	rl.mu.Unlock()
	return nil
}

// waitMinInterval sleeps out the remaining spacing since the last request.
func (rl *RateLimiter) waitMinInterval(ctx context.Context) error {
	rl.mu.Lock()
	gap := rl.minInterval - time.Since(rl.lastRequest)
	rl.mu.Unlock()

	if gap <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(gap):
		return nil
	}
}

// classify turns a wait failure into the right error: the caller's own
// cancellation passes through, an exhausted budget becomes RateLimitError.
func (rl *RateLimiter) classify(ctx context.Context, _ error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	retryAfter := rl.estimateDelay()
	return &RateLimitError{
		RetryAfter: retryAfter,
		Message:    "evaluator rate limit exceeded, retry after " + retryAfter.String(),
	}
}

// estimateDelay guesses how long until the next token is available.
func (rl *RateLimiter) estimateDelay() time.Duration {
	missing := 1.0 - rl.bucket.Tokens()
	if missing <= 0 {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return rl.minInterval
	}
	return time.Duration(missing / float64(rl.bucket.Limit()) * float64(time.Second))
}

// RecordRateLimitHit reacts to a 429 from the service: the bucket is drained
// and the spacing widens to the server's Retry-After.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// AllowN on a full-or-partial bucket consumes what it can; reserving
	// the whole burst empties it.
	rl.bucket.AllowN(time.Now(), rl.cfg.BurstSize)
	rl.lastRequest = time.Now()
	if retryAfter > rl.minInterval {
		rl.minInterval = retryAfter
	}
}

// Reset restores the limiter to its initial state, including any spacing
// stretched by earlier 429 responses.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.bucket = rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.BurstSize)
	rl.minInterval = rl.cfg.MinInterval
	rl.lastRequest = time.Now().Add(-rl.minInterval)
}

// RateLimitError is returned when the rate limit wait budget is exhausted.
type RateLimitError struct {
	// RetryAfter is the suggested time to wait before retrying.
	RetryAfter time.Duration

	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Is lets errors.Is match any RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	var other *RateLimitError
	return errors.As(target, &other)
}
