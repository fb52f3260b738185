package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

func newTestProgress(t *testing.T) *progress.UserProgress {
	t.Helper()
	p, err := progress.NewUserProgress(shared.UserID("user-1"))
	require.NoError(t, err)
	return p
}

func completeScenario(t *testing.T, p *progress.UserProgress, id string, score int) {
	t.Helper()
	s, err := shared.NewScore(score)
	require.NoError(t, err)
	_, err = p.RecordScenarioAttempt(shared.ContentID(id), s, 10, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestEvaluate_EmptyInputs(t *testing.T) {
	p := newTestProgress(t)

	assert.Nil(t, Evaluate(nil, DefaultCatalog()))
	assert.Nil(t, Evaluate(p, nil))
	assert.Nil(t, Evaluate(p, DefaultCatalog()), "fresh user satisfies nothing")
}

func TestEvaluate_FirstScenarioCompletion(t *testing.T) {
	p := newTestProgress(t)
	completeScenario(t, p, "s1", 85)

	satisfied := Evaluate(p, DefaultCatalog())

	ids := make([]string, 0, len(satisfied))
	for _, def := range satisfied {
		ids = append(ids, def.ID)
	}
	assert.Contains(t, ids, "first-win")
	assert.Contains(t, ids, "sharp-mind") // average score 85 over one completed scenario
	assert.NotContains(t, ids, "scenario-master")
}

func TestEvaluate_SkipsAlreadyUnlocked(t *testing.T) {
	p := newTestProgress(t)
	completeScenario(t, p, "s1", 85)

	first := Evaluate(p, DefaultCatalog())
	require.NotEmpty(t, first)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, def := range first {
		require.NoError(t, p.UnlockAchievement(def.ID, progress.XP(def.Points), now))
	}

	// Re-evaluation with unchanged state must be empty: unlock is at-most-once.
	assert.Empty(t, Evaluate(p, DefaultCatalog()))
}

func TestEvaluate_StreakAchievement(t *testing.T) {
	p := newTestProgress(t)
	for d := 1; d <= 7; d++ {
		p.TouchActivity(time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC))
	}

	satisfied := Evaluate(p, Catalog{
		{ID: "week-of-fire", Title: "Неделя огня", Points: 100,
			Requirement: Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 7}},
		{ID: "iron-will", Title: "Железная воля", Points: 500,
			Requirement: Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 30}},
	})

	require.Len(t, satisfied, 1)
	assert.Equal(t, "week-of-fire", satisfied[0].ID)
}

func TestMetricValue(t *testing.T) {
	p := newTestProgress(t)
	completeScenario(t, p, "s1", 80)
	completeScenario(t, p, "s2", 90)
	_, err := p.RecordLessonEvent("intro", true, 30, nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 2.0, MetricValue(p, MetricScenariosCompleted))
	assert.Equal(t, 1.0, MetricValue(p, MetricLessonsCompleted))
	assert.InDelta(t, 85.0, MetricValue(p, MetricAverageScore), 0.001)
	assert.Equal(t, 50.0, MetricValue(p, MetricTotalTimeSpent))
	assert.Equal(t, float64(p.Level.Int()), MetricValue(p, MetricLevel))
	assert.Equal(t, 0.0, MetricValue(p, Metric("unknown")))
}

func TestEvaluate_HasNoSideEffects(t *testing.T) {
	p := newTestProgress(t)
	completeScenario(t, p, "s1", 85)
	before := p.Snapshot()

	for i := 0; i < 5; i++ {
		Evaluate(p, DefaultCatalog())
	}

	assert.Equal(t, before, p.Snapshot())
}
