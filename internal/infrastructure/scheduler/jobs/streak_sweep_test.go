package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type stubProgressRepo struct {
	atRisk  []*progress.UserProgress
	findErr error

	gotNow   time.Time
	gotLimit int
}

func (r *stubProgressRepo) Create(ctx context.Context, p *progress.UserProgress) error {
	return nil
}

func (r *stubProgressRepo) GetByUserID(ctx context.Context, userID shared.UserID) (*progress.UserProgress, error) {
	return nil, shared.ErrProgressNotFound
}

func (r *stubProgressRepo) Save(ctx context.Context, p *progress.UserProgress) error {
	return nil
}

func (r *stubProgressRepo) Delete(ctx context.Context, userID shared.UserID) error {
	return nil
}

func (r *stubProgressRepo) Exists(ctx context.Context, userID shared.UserID) (bool, error) {
	return false, nil
}

func (r *stubProgressRepo) FindStreaksAtRisk(ctx context.Context, now time.Time, limit int) ([]*progress.UserProgress, error) {
	r.gotNow = now
	r.gotLimit = limit
	return r.atRisk, r.findErr
}

func (r *stubProgressRepo) Count(ctx context.Context) (int, error) {
	return len(r.atRisk), nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func atRiskUser(userID string, streak int) *progress.UserProgress {
	return &progress.UserProgress{
		UserID:        shared.UserID(userID),
		CurrentStreak: streak,
		LongestStreak: streak,
		LastActiveAt:  time.Now().UTC().Add(-24 * time.Hour),
		Version:       1,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestStreakSweepJob_EmitsEventPerUser(t *testing.T) {
	repo := &stubProgressRepo{
		atRisk: []*progress.UserProgress{
			atRiskUser("user-1", 5),
			atRiskUser("user-2", 12),
		},
	}
	publisher := &capturePublisher{}

	job := NewStreakSweepJob(repo, publisher, nil, DefaultStreakSweepConfig())
	require.NoError(t, job.Run(context.Background()))

	atRisk := publisher.byType(shared.EventStreakAtRisk)
	require.Len(t, atRisk, 2)

	first, ok := atRisk[0].(shared.StreakAtRiskEvent)
	require.True(t, ok)
	assert.Equal(t, "user-1", first.UserID)
	assert.Equal(t, 5, first.CurrentStreak)
	assert.GreaterOrEqual(t, first.HoursLeft, 0)
	assert.Less(t, first.HoursLeft, 24)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.UsersAtRisk)
	assert.Equal(t, 2, stats.EventsEmitted)
	assert.Equal(t, 0, stats.Errors)
}

func TestStreakSweepJob_EmitsSweepCompleted(t *testing.T) {
	repo := &stubProgressRepo{
		atRisk: []*progress.UserProgress{atRiskUser("user-1", 3)},
	}
	publisher := &capturePublisher{}

	job := NewStreakSweepJob(repo, publisher, nil, DefaultStreakSweepConfig())
	require.NoError(t, job.Run(context.Background()))

	completed := publisher.byType(shared.EventSweepCompleted)
	require.Len(t, completed, 1)

	sweep, ok := completed[0].(shared.SweepCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "streak_sweep", sweep.JobName)
	assert.Equal(t, 1, sweep.UsersScanned)
	assert.Equal(t, 1, sweep.EventsEmitted)
}

func TestStreakSweepJob_NoUsersAtRisk(t *testing.T) {
	repo := &stubProgressRepo{}
	publisher := &capturePublisher{}

	job := NewStreakSweepJob(repo, publisher, nil, DefaultStreakSweepConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, publisher.byType(shared.EventStreakAtRisk))
	// Сводное событие публикуется даже при пустой выборке.
	assert.Len(t, publisher.byType(shared.EventSweepCompleted), 1)
}

func TestStreakSweepJob_RepositoryError(t *testing.T) {
	repo := &stubProgressRepo{findErr: errors.New("connection refused")}
	publisher := &capturePublisher{}

	job := NewStreakSweepJob(repo, publisher, nil, DefaultStreakSweepConfig())
	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Empty(t, publisher.events)
	assert.Nil(t, job.LastRunStats())
}

func TestStreakSweepJob_PublishErrorsCounted(t *testing.T) {
	repo := &stubProgressRepo{
		atRisk: []*progress.UserProgress{atRiskUser("user-1", 7)},
	}
	publisher := &capturePublisher{err: errors.New("bus closed")}

	job := NewStreakSweepJob(repo, publisher, nil, DefaultStreakSweepConfig())
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.EventsEmitted)
}

func TestStreakSweepJob_PassesLimitToRepository(t *testing.T) {
	repo := &stubProgressRepo{}
	publisher := &capturePublisher{}

	config := StreakSweepConfig{MaxUsers: 250, Timeout: time.Minute}
	job := NewStreakSweepJob(repo, publisher, nil, config)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 250, repo.gotLimit)
	assert.Equal(t, time.UTC, repo.gotNow.Location())
}
