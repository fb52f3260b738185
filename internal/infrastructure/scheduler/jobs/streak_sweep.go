// Package jobs contains implementations of scheduled jobs for PMCraft Hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakSweepJob finds users whose streak dies at the next UTC midnight
// (last activity yesterday, streak still alive) and emits a
// progress.streak_at_risk event per user. The notification collaborator
// subscribes to these events; the engine itself never sends messages.
//
// The job only reads progress state. It never mutates records: a streak
// that is not extended simply lapses by the day arithmetic on the next
// accepted event.
type StreakSweepJob struct {
	progressRepo   progress.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config StreakSweepConfig

	lastRunStats atomic.Value // *StreakSweepStats
}

// StreakSweepConfig contains configuration for the streak sweep job.
type StreakSweepConfig struct {
	// MaxUsers caps how many at-risk users a single sweep processes.
	MaxUsers int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultStreakSweepConfig returns sensible defaults.
func DefaultStreakSweepConfig() StreakSweepConfig {
	return StreakSweepConfig{
		MaxUsers: 10000,
		Timeout:  2 * time.Minute,
	}
}

// StreakSweepStats contains statistics from a sweep run.
type StreakSweepStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	UsersAtRisk   int
	EventsEmitted int
	Errors        int
}

// NewStreakSweepJob creates a new StreakSweepJob.
func NewStreakSweepJob(
	progressRepo progress.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
	config StreakSweepConfig,
) *StreakSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxUsers <= 0 {
		config.MaxUsers = DefaultStreakSweepConfig().MaxUsers
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultStreakSweepConfig().Timeout
	}

	return &StreakSweepJob{
		progressRepo:   progressRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		config:         config,
	}
}

// Name implements the Job interface.
func (j *StreakSweepJob) Name() string {
	return "streak_sweep"
}

// Description implements the Job interface.
func (j *StreakSweepJob) Description() string {
	return "Emits streak_at_risk events for users whose streak expires at the next UTC midnight"
}

// Run implements the Job interface.
func (j *StreakSweepJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	now := time.Now().UTC()
	stats := &StreakSweepStats{StartedAt: now}

	atRisk, err := j.progressRepo.FindStreaksAtRisk(ctx, now, j.config.MaxUsers)
	if err != nil {
		return fmt.Errorf("streak sweep: find at-risk users: %w", err)
	}

	stats.UsersAtRisk = len(atRisk)
	hoursLeft := int(timeutil.UntilEndOfDay(now).Hours())

	for _, p := range atRisk {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event := shared.NewStreakAtRiskEvent(p.UserID.String(), p.CurrentStreak, hoursLeft)
		if err := j.eventPublisher.Publish(event); err != nil {
			stats.Errors++
			j.logger.Error("failed to publish streak_at_risk event",
				"user_id", p.UserID.String(),
				"error", err,
			)
			continue
		}
		stats.EventsEmitted++
	}

	stats.CompletedAt = time.Now().UTC()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastRunStats.Store(stats)

	sweepEvent := shared.NewSweepCompletedEvent(j.Name(), stats.UsersAtRisk, stats.EventsEmitted, stats.Duration)
	if err := j.eventPublisher.Publish(sweepEvent); err != nil {
		j.logger.Warn("failed to publish sweep_completed event", "error", err)
	}

	j.logger.Info("streak sweep completed",
		"users_at_risk", stats.UsersAtRisk,
		"events_emitted", stats.EventsEmitted,
		"errors", stats.Errors,
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastRunStats returns statistics from the most recent run, or nil.
func (j *StreakSweepJob) LastRunStats() *StreakSweepStats {
	if stats, ok := j.lastRunStats.Load().(*StreakSweepStats); ok {
		return stats
	}
	return nil
}
