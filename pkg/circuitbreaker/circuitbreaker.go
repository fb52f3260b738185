// Package circuitbreaker guards calls to external services. When the LLM
// scoring service starts failing, the breaker opens and sheds requests
// instead of queueing them behind a dead upstream.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned while the breaker is open and calls
	// are shed.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when the half-open probe budget
	// is exhausted.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// State is the breaker state.
type State int

const (
	// StateClosed: calls pass through, failures are counted.
	StateClosed State = iota
	// StateOpen: calls are rejected until the cooldown elapses.
	StateOpen
	// StateHalfOpen: a limited number of probe calls test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning.
type Config struct {
	// Name identifies the breaker in logs.
	Name string

	// FailureThreshold is the consecutive-failure count that opens
	// the breaker.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count in half-open
	// that closes it again.
	SuccessThreshold int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// MaxProbes caps concurrent-ish probe calls in half-open state.
	MaxProbes int

	// OnStateChange is invoked on every transition.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies errors; nil means every non-nil error counts.
	IsFailure func(error) bool
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = 1
	}
}

// CircuitBreaker tracks the health of one upstream dependency.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	fails       int
	succs       int
	probes      int
	openedUntil time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// EvaluatorBreaker is tuned for the LLM scoring service. Conservative on
// purpose: the provider is slow to recover, and hammering it during an
// outage only extends the outage.
func EvaluatorBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Config{
		Name:             "evaluator",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		MaxProbes:        1,
		OnStateChange:    onStateChange,
	})
}

// Execute runs fn if the breaker allows it and records the outcome.
// Rejections are reported as ErrCircuitOpen or ErrTooManyRequests
// without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// admit decides whether a call may proceed, transitioning open -> half-open
// when the cooldown has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Now().Before(cb.openedUntil) {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil

	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxProbes {
			return ErrTooManyRequests
		}
		cb.probes++
		return nil

	default:
		return ErrCircuitOpen
	}
}

// record updates counters and state from one call outcome.
func (cb *CircuitBreaker) record(err error) {
	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if failed {
		cb.fails++
		cb.succs = 0

		switch cb.state {
		case StateClosed:
			if cb.fails >= cb.cfg.FailureThreshold {
				cb.trip()
			}
		case StateHalfOpen:
			// A failed probe re-opens immediately.
			cb.trip()
		}
		return
	}

	cb.succs++
	cb.fails = 0

	if cb.state == StateHalfOpen && cb.succs >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

// trip opens the breaker and starts the cooldown.
func (cb *CircuitBreaker) trip() {
	cb.openedUntil = time.Now().Add(cb.cfg.Cooldown)
	cb.transition(StateOpen)
}

// transition changes state and resets the window counters.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.fails = 0
	cb.succs = 0
	cb.probes = 0

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset force-closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.fails = 0
	cb.succs = 0
	cb.probes = 0
	cb.openedUntil = time.Time{}
}
