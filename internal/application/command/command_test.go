package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

// memoryRepo is an in-memory progress.Repository with real compare-and-swap
// semantics on the version token.
type memoryRepo struct {
	mu    sync.Mutex
	store map[string]*progress.UserProgress

	// failSaves injects this many version conflicts before saves succeed.
	failSaves int
	saveCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{store: make(map[string]*progress.UserProgress)}
}

func (r *memoryRepo) Create(_ context.Context, p *progress.UserProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[p.UserID.String()]; ok {
		return shared.ErrProgressAlreadyExists
	}
	r.store[p.UserID.String()] = p.Clone()
	return nil
}

func (r *memoryRepo) GetByUserID(_ context.Context, userID shared.UserID) (*progress.UserProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store[userID.String()]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (r *memoryRepo) Save(_ context.Context, p *progress.UserProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if r.failSaves > 0 {
		r.failSaves--
		return shared.ErrProgressConflict
	}

	stored, ok := r.store[p.UserID.String()]
	if !ok {
		return shared.ErrProgressNotFound
	}
	if stored.Version != p.Version {
		return shared.ErrProgressConflict
	}
	p.Version++
	r.store[p.UserID.String()] = p.Clone()
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, userID shared.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[userID.String()]; !ok {
		return shared.ErrProgressNotFound
	}
	delete(r.store, userID.String())
	return nil
}

func (r *memoryRepo) Exists(_ context.Context, userID shared.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.store[userID.String()]
	return ok, nil
}

func (r *memoryRepo) FindStreaksAtRisk(_ context.Context, now time.Time, _ int) ([]*progress.UserProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*progress.UserProgress
	for _, p := range r.store {
		if p.StreakAtRisk(now) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r *memoryRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.store), nil
}

// staticCatalog serves a fixed achievement catalog.
type staticCatalog struct {
	catalog achievement.Catalog
}

func (c *staticCatalog) LoadCatalog(_ context.Context) (achievement.Catalog, error) {
	if len(c.catalog) == 0 {
		return nil, shared.ErrCatalogEmpty
	}
	return c.catalog, nil
}

// capturePublisher collects published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

func provision(t *testing.T, repo *memoryRepo, userID string) {
	t.Helper()
	h := NewCreateInitialProgressHandler(repo, nil)
	_, err := h.Handle(context.Background(), CreateInitialProgressCommand{UserID: userID})
	require.NoError(t, err)
}

func onDay(d int) time.Time {
	return time.Date(2026, time.April, d, 12, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

// ══════════════════════════════════════════════════════════════════════════════
// CREATE INITIAL PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateInitialProgress(t *testing.T) {
	repo := newMemoryRepo()
	pub := &capturePublisher{}
	h := NewCreateInitialProgressHandler(repo, pub)

	res, err := h.Handle(context.Background(), CreateInitialProgressCommand{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", res.Stats.UserID)
	assert.Zero(t, res.Stats.XP)
	assert.Equal(t, 1, res.Stats.Level)
	assert.Contains(t, pub.types(), shared.EventProgressCreated)

	// Provisioning is exactly-once per user.
	_, err = h.Handle(context.Background(), CreateInitialProgressCommand{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrProgressAlreadyExists)
}

func TestCreateInitialProgress_InvalidUserID(t *testing.T) {
	h := NewCreateInitialProgressHandler(newMemoryRepo(), nil)

	_, err := h.Handle(context.Background(), CreateInitialProgressCommand{UserID: "bad id"})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LESSON EVENT
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordLessonEvent_FirstCompletion(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	pub := &capturePublisher{}
	h := NewRecordLessonEventHandler(repo, nil, nil, pub)

	res, err := h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: 10,
		Timestamp: onDay(1),
	})
	require.NoError(t, err)

	assert.Equal(t, 20, res.Stats.XP)
	assert.Equal(t, 1, res.Stats.Level)
	assert.Equal(t, 1, res.Stats.CurrentStreak)
	assert.Equal(t, 1, res.Stats.LessonsCompleted)
	assert.Equal(t, 20, res.XPAwarded)
	assert.True(t, res.JustCompleted)

	types := pub.types()
	assert.Contains(t, types, shared.EventLessonCompleted)
	assert.Contains(t, types, shared.EventStreakExtended)
	assert.Contains(t, types, shared.EventXPAwarded)
}

func TestRecordLessonEvent_Idempotent(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	h := NewRecordLessonEventHandler(repo, nil, nil, nil)

	_, err := h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: 10, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	res, err := h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: 7, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	assert.Equal(t, 20, res.Stats.XP, "+20 exactly once")
	assert.Equal(t, 0, res.XPAwarded)
	assert.False(t, res.JustCompleted)
	assert.Equal(t, 17, res.Stats.TotalTimeSpent)
}

func TestRecordLessonEvent_UnprovisionedUser(t *testing.T) {
	h := NewRecordLessonEventHandler(newMemoryRepo(), nil, nil, nil)

	_, err := h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "ghost", LessonID: "intro", Completed: true, TimeSpent: 5,
	})
	assert.True(t, shared.IsNotFound(err), "mutation without provisioning is NotFound")
}

func TestRecordLessonEvent_ValidationBeforeState(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	h := NewRecordLessonEventHandler(repo, nil, nil, nil)

	_, err := h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: -1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidTimeSpent)

	_, err = h.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: 5, Score: intPtr(101),
	})
	assert.ErrorIs(t, err, shared.ErrInvalidScore)

	stored, err := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)
	assert.Zero(t, stored.XP, "no state change on rejected input")
	assert.Equal(t, 0, repo.saveCalls)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SCENARIO EVENT
// ══════════════════════════════════════════════════════════════════════════════

// New user completes a lesson then scores 85 on a scenario the same day:
// total XP must be exactly 20 + 10 + 8 + 25 = 63.
func TestRecordScenarioEvent_ConcreteFirstDayFlow(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")

	lessons := NewRecordLessonEventHandler(repo, nil, nil, nil)
	scenarios := NewRecordScenarioEventHandler(repo, nil, nil, nil)

	_, err := lessons.Handle(context.Background(), RecordLessonEventCommand{
		UserID: "u1", LessonID: "intro", Completed: true, TimeSpent: 10, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	res, err := scenarios.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 85, TimeSpent: 15, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	assert.Equal(t, 63, res.Stats.XP)
	assert.Equal(t, 1, res.Stats.ScenariosCompleted)
	assert.Equal(t, 1, res.Stats.CurrentStreak, "same day leaves streak unchanged")
	assert.True(t, res.JustCompleted)
	assert.Equal(t, 43, res.XPAwarded)
}

func TestRecordScenarioEvent_ValidationRejection(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	h := NewRecordScenarioEventHandler(repo, nil, nil, nil)

	before, err := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 150, TimeSpent: 5,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidScore)

	after, err := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)
	assert.Equal(t, before.Snapshot(), after.Snapshot())
}

func TestRecordScenarioEvent_AchievementUnlockSameWrite(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	pub := &capturePublisher{}
	catalog := &staticCatalog{catalog: achievement.Catalog{
		{ID: "first-win", Title: "Первая победа", Points: 50,
			Requirement: achievement.Requirement{
				Metric: achievement.MetricScenariosCompleted, Comparator: achievement.ComparatorGTE, Threshold: 1,
			}},
	}}
	h := NewRecordScenarioEventHandler(repo, catalog, nil, pub)

	res, err := h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 85, TimeSpent: 10, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	// 10 first attempt + 8 score + 25 completion + 50 achievement points.
	assert.Equal(t, 93, res.Stats.XP)
	require.Len(t, res.UnlockedAchievements, 1)
	assert.Equal(t, "first-win", res.UnlockedAchievements[0].ID)
	assert.Contains(t, pub.types(), shared.EventAchievementUnlocked)

	// Unlock and its points landed in the same committed record.
	stored, err := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)
	assert.True(t, stored.HasAchievement("first-win"))
	assert.Equal(t, progress.XP(93), stored.XP)

	// Replaying a weaker attempt never re-unlocks.
	res2, err := h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 40, TimeSpent: 5, Timestamp: onDay(1),
	})
	require.NoError(t, err)
	assert.Empty(t, res2.UnlockedAchievements)
	assert.Equal(t, 93, res2.Stats.XP)
}

func TestRecordScenarioEvent_UnlockCanLevelUp(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	catalog := &staticCatalog{catalog: achievement.Catalog{
		{ID: "first-win", Title: "Первая победа", Points: 100,
			Requirement: achievement.Requirement{
				Metric: achievement.MetricScenariosCompleted, Comparator: achievement.ComparatorGTE, Threshold: 1,
			}},
	}}
	h := NewRecordScenarioEventHandler(repo, catalog, nil, nil)

	res, err := h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 70, TimeSpent: 10, Timestamp: onDay(1),
	})
	require.NoError(t, err)

	// 10 + 7 + 25 = 42, then +100 unlock points crosses the level boundary.
	assert.Equal(t, 142, res.Stats.XP)
	assert.Equal(t, 2, res.Stats.Level)
	assert.True(t, res.LeveledUp)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIMISTIC CONCURRENCY
// ══════════════════════════════════════════════════════════════════════════════

func TestConflictRetry_RecoversWithinBudget(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	repo.failSaves = 2 // two lost races, third attempt wins
	h := NewRecordScenarioEventHandler(repo, nil, nil, nil)

	res, err := h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 85, TimeSpent: 10, Timestamp: onDay(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 43, res.Stats.XP)
	assert.Equal(t, 3, repo.saveCalls)
}

func TestConflictRetry_SurfacesAfterBudget(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	repo.failSaves = 10
	h := NewRecordScenarioEventHandler(repo, nil, nil, nil)

	_, err := h.Handle(context.Background(), RecordScenarioEventCommand{
		UserID: "u1", ScenarioID: "s1", Score: 85, TimeSpent: 10, Timestamp: onDay(1),
	})
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 3, repo.saveCalls, "bounded retries")

	stored, getErr := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, getErr)
	assert.Zero(t, stored.XP, "nothing committed on conflict")
}

func TestStreakAcrossDays(t *testing.T) {
	repo := newMemoryRepo()
	provision(t, repo, "u1")
	h := NewRecordLessonEventHandler(repo, nil, nil, nil)

	days := []int{1, 2, 4}
	wantStreak := []int{1, 2, 1}

	for i, d := range days {
		res, err := h.Handle(context.Background(), RecordLessonEventCommand{
			UserID: "u1", LessonID: "intro", Completed: false, TimeSpent: 5, Timestamp: onDay(d),
		})
		require.NoError(t, err)
		assert.Equal(t, wantStreak[i], res.Stats.CurrentStreak, "day %d", d)
	}

	stored, err := repo.GetByUserID(context.Background(), shared.UserID("u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.LongestStreak)
}
