package query

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

type stubRepo struct {
	records map[string]*progress.UserProgress
}

func (r *stubRepo) Create(_ context.Context, p *progress.UserProgress) error {
	r.records[p.UserID.String()] = p
	return nil
}

func (r *stubRepo) GetByUserID(_ context.Context, userID shared.UserID) (*progress.UserProgress, error) {
	p, ok := r.records[userID.String()]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (r *stubRepo) Save(_ context.Context, _ *progress.UserProgress) error { return nil }

func (r *stubRepo) Delete(_ context.Context, _ shared.UserID) error { return nil }

func (r *stubRepo) Exists(_ context.Context, userID shared.UserID) (bool, error) {
	_, ok := r.records[userID.String()]
	return ok, nil
}

func (r *stubRepo) FindStreaksAtRisk(_ context.Context, _ time.Time, _ int) ([]*progress.UserProgress, error) {
	return nil, nil
}

func (r *stubRepo) Count(_ context.Context) (int, error) { return len(r.records), nil }

type memCache struct {
	mu    sync.Mutex
	stats map[string]*progress.Stats
	hits  int
	sets  int
}

func newMemCache() *memCache {
	return &memCache{stats: make(map[string]*progress.Stats)}
}

func (c *memCache) GetStats(_ context.Context, userID shared.UserID) (*progress.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[userID.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c.hits++
	return s, nil
}

func (c *memCache) SetStats(_ context.Context, stats *progress.Stats, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.stats[stats.UserID] = stats
	return nil
}

func (c *memCache) Invalidate(_ context.Context, userID shared.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stats, userID.String())
	return nil
}

type stubCatalog struct{ catalog achievement.Catalog }

func (c *stubCatalog) LoadCatalog(_ context.Context) (achievement.Catalog, error) {
	return c.catalog, nil
}

func seedProgress(t *testing.T) *stubRepo {
	t.Helper()

	p, err := progress.NewUserProgress(shared.UserID("u1"))
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	p.TouchActivity(now)
	_, err = p.RecordScenarioAttempt("s1", shared.Score(85), 15, now)
	require.NoError(t, err)
	_, err = p.RecordLessonEvent("intro", true, 10, nil, now)
	require.NoError(t, err)
	require.NoError(t, p.UnlockAchievement("first-win", 50, now))

	return &stubRepo{records: map[string]*progress.UserProgress{"u1": p}}
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetStats(t *testing.T) {
	repo := seedProgress(t)
	h := NewGetStatsHandler(repo, nil, 0)

	dto, err := h.Handle(context.Background(), GetStatsQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", dto.UserID)
	assert.Equal(t, 113, dto.XP) // 43 scenario + 20 lesson + 50 unlock
	assert.Equal(t, 2, dto.Level)
	assert.Equal(t, 87, dto.XPToNextLevel)
	assert.Equal(t, 1, dto.ScenariosCompleted)
	assert.Equal(t, 1, dto.LessonsCompleted)
	assert.Equal(t, 1, dto.CurrentStreak)
	assert.Len(t, dto.Achievements, 1)
}

func TestGetStats_NotFound(t *testing.T) {
	h := NewGetStatsHandler(&stubRepo{records: map[string]*progress.UserProgress{}}, nil, 0)

	_, err := h.Handle(context.Background(), GetStatsQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetStats_Validation(t *testing.T) {
	h := NewGetStatsHandler(seedProgress(t), nil, 0)

	_, err := h.Handle(context.Background(), GetStatsQuery{UserID: ""})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestGetStats_ReadThroughCache(t *testing.T) {
	repo := seedProgress(t)
	cache := newMemCache()
	h := NewGetStatsHandler(repo, cache, time.Minute)

	// First read misses and populates.
	_, err := h.Handle(context.Background(), GetStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 0, cache.hits)

	// Second read hits.
	dto, err := h.Handle(context.Background(), GetStatsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 113, dto.XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetAchievements(t *testing.T) {
	repo := seedProgress(t)
	catalog := &stubCatalog{catalog: achievement.DefaultCatalog()}
	h := NewGetAchievementsHandler(repo, catalog)

	dtos, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Len(t, dtos, len(achievement.DefaultCatalog()), "every catalog entry is present")

	byID := make(map[string]AchievementDTO, len(dtos))
	for _, d := range dtos {
		byID[d.ID] = d
	}

	assert.True(t, byID["first-win"].Unlocked)
	assert.NotNil(t, byID["first-win"].UnlockedAt)
	assert.False(t, byID["iron-will"].Unlocked)
	assert.Nil(t, byID["iron-will"].UnlockedAt)
}

func TestGetAchievements_OnlyUnlocked(t *testing.T) {
	repo := seedProgress(t)
	catalog := &stubCatalog{catalog: achievement.DefaultCatalog()}
	h := NewGetAchievementsHandler(repo, catalog)

	dtos, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: "u1", OnlyUnlocked: true})
	require.NoError(t, err)

	require.Len(t, dtos, 1)
	assert.Equal(t, "first-win", dtos[0].ID)
}

func TestGetAchievements_NotFound(t *testing.T) {
	h := NewGetAchievementsHandler(
		&stubRepo{records: map[string]*progress.UserProgress{}},
		&stubCatalog{catalog: achievement.DefaultCatalog()},
	)

	_, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}
