package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var errEvaluatorDown = errors.New("scoring service reported unhealthy")

// checkTimeout bounds each individual probe so one hung dependency cannot
// stall the whole health endpoint.
const checkTimeout = 5 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker is what the health endpoints call.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc probes one dependency; nil means healthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated health report returned to probes.
type HealthStatus struct {
	// Healthy is the AND of all registered checks.
	Healthy bool `json:"healthy"`

	// Ready mirrors Healthy; kept separate for readiness probes.
	Ready bool `json:"ready"`

	// Message summarizes the outcome.
	Message string `json:"message,omitempty"`

	// Checks holds the per-dependency results.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Uptime since process start.
	Uptime string `json:"uptime,omitempty"`

	// Timestamp of this report, UTC.
	Timestamp time.Time `json:"timestamp"`

	// Version of the running service.
	Version string `json:"version,omitempty"`
}

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// CompositeHealthChecker runs a set of named probes in parallel and
// aggregates them into one HealthStatus.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	started time.Time
	version string
}

// NewCompositeHealthChecker creates an empty checker.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		started: time.Now(),
		version: version,
	}
}

// AddCheck registers a named probe.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every registered probe concurrently.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	probes := make([]HealthCheckFunc, 0, len(c.checks))
	for name, probe := range c.checks {
		names = append(names, name)
		probes = append(probes, probe)
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	if len(probes) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	results := make([]CheckResult, len(probes))

	var wg sync.WaitGroup
	for i, probe := range probes {
		wg.Add(1)
		go func(i int, probe HealthCheckFunc) {
			defer wg.Done()
			results[i] = runProbe(ctx, probe)
		}(i, probe)
	}
	wg.Wait()

	status.Checks = make(map[string]CheckResult, len(results))
	var failed []string
	for i, result := range results {
		status.Checks[names[i]] = result
		if !result.Healthy {
			failed = append(failed, names[i])
		}
	}

	if len(failed) == 0 {
		status.Message = "All checks passed"
	} else {
		status.Healthy = false
		status.Ready = false
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}

	return status
}

// runProbe executes one probe under the per-check timeout.
func runProbe(ctx context.Context, probe HealthCheckFunc) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)

	result := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Message = err.Error()
	}

	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCY PROBES
// ══════════════════════════════════════════════════════════════════════════════

// DatabaseChecker is the connectivity surface of the progress store.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// NewDatabaseCheck probes the progress store.
func NewDatabaseCheck(db DatabaseChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		return db.Ping(ctx)
	}
}

// CacheChecker is the connectivity surface of the stats cache.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// NewCacheCheck probes the stats cache.
func NewCacheCheck(cache CacheChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		return cache.Ping(ctx)
	}
}

// EvaluatorChecker is the health surface of the scoring service client.
type EvaluatorChecker interface {
	IsHealthy(ctx context.Context) bool
}

// NewEvaluatorCheck probes the scoring service. The evaluator is a
// degraded-mode dependency: the analysis endpoint needs it, direct score
// submission does not.
func NewEvaluatorCheck(api EvaluatorChecker) HealthCheckFunc {
	return func(ctx context.Context) error {
		if !api.IsHealthy(ctx) {
			return errEvaluatorDown
		}
		return nil
	}
}
