// Package scheduler runs the periodic background jobs of PMCraft Hub.
// The engine itself is request-driven; everything time-driven (the evening
// streak sweep) lives behind this package.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic work.
type Job interface {
	// Name identifies the job; registration rejects duplicates.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// is stopping.
	Run(ctx context.Context) error

	// Description says what the job does, for logs and ops tooling.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time

	// String renders the schedule for logs.
	String() string
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig tunes the scheduler.
type SchedulerConfig struct {
	// Logger receives job lifecycle records.
	Logger *slog.Logger

	// Timezone anchors schedule arithmetic (UTC when nil).
	// Streak semantics are UTC-calendar based, so jobs normally keep this
	// at UTC.
	Timezone *time.Location
}

// DefaultSchedulerConfig returns the production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:   slog.Default(),
		Timezone: time.UTC,
	}
}

// Scheduler owns a set of jobs and runs each on its own schedule.
// Every job gets a dedicated goroutine that sleeps until the next due time,
// so one slow job never delays another, and a single job never overlaps
// with itself.
type Scheduler struct {
	logger *slog.Logger
	tz     *time.Location

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// entry tracks one registered job and its run statistics.
type entry struct {
	job      Job
	schedule Schedule

	mu       sync.Mutex
	lastRun  time.Time
	nextRun  time.Time
	runs     int64
	failures int64
	lastErr  error
}

// NewScheduler builds an idle scheduler; Start launches the job loops.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}

	return &Scheduler{
		logger:  config.Logger,
		tz:      config.Timezone,
		entries: make(map[string]*entry),
	}
}

// Register adds a job. Registration is only allowed before Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	name := job.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	e := &entry{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().In(s.tz)),
	}
	s.entries[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_run", e.nextRun.Format(time.RFC3339),
	)

	return nil
}

// Start launches one runner goroutine per registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.runEntry(runCtx, e)
	}

	s.logger.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels all runners and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runEntry is the per-job loop: sleep until due, run, reschedule.
func (s *Scheduler) runEntry(ctx context.Context, e *entry) {
	defer s.wg.Done()

	for {
		e.mu.Lock()
		next := e.nextRun
		e.mu.Unlock()

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.execute(ctx, e)

		e.mu.Lock()
		e.nextRun = e.schedule.Next(time.Now().In(s.tz))
		e.mu.Unlock()
	}
}

// execute runs the job once and records the outcome.
func (s *Scheduler) execute(ctx context.Context, e *entry) {
	name := e.job.Name()
	started := time.Now()

	s.logger.Info("job started", "job", name)

	err := e.job.Run(ctx)
	duration := time.Since(started)

	e.mu.Lock()
	e.lastRun = started
	e.runs++
	e.lastErr = err
	if err != nil {
		e.failures++
	}
	e.mu.Unlock()

	if err != nil {
		// A failed sweep is retried at the next scheduled slot, not sooner:
		// the job is idempotent and never urgent.
		s.logger.Error("job failed",
			"job", name,
			"duration", duration.String(),
			"error", err,
		)
		return
	}

	s.logger.Info("job completed",
		"job", name,
		"duration", duration.String(),
	)
}

// RunNow executes a registered job immediately, outside its schedule.
// Used by operational tooling and tests; the regular schedule is unaffected.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) error {
	s.mu.Lock()
	e, exists := s.entries[jobName]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobName)
	}

	s.logger.Info("manual job run", "job", jobName)
	s.execute(ctx, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job and its run statistics.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	Runs        int64
	Failures    int64
}

// ListJobs returns a snapshot of all registered jobs.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		e.mu.Lock()
		infos = append(infos, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			Runs:        e.runs,
			Failures:    e.failures,
		})
		e.mu.Unlock()
	}

	return infos
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when registering a nil job.
	ErrNilJob = errors.New("scheduler: job cannot be nil")

	// ErrNilSchedule is returned when registering a job without a schedule.
	ErrNilSchedule = errors.New("scheduler: schedule cannot be nil")

	// ErrDuplicateJob is returned when a job name is already taken.
	ErrDuplicateJob = errors.New("scheduler: job already registered")

	// ErrUnknownJob is returned when a job name is not registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")

	// ErrAlreadyRunning is returned by Start and Register on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrNotRunning is returned by Stop on a stopped scheduler.
	ErrNotRunning = errors.New("scheduler: not running")
)
