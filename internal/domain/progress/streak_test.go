package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

func newProgress(t *testing.T) *UserProgress {
	t.Helper()
	p, err := NewUserProgress(shared.UserID("user-1"))
	require.NoError(t, err)
	return p
}

func day(d int, hour int) time.Time {
	return time.Date(2026, time.March, d, hour, 0, 0, 0, time.UTC)
}

func TestTouchActivity_FirstEvent(t *testing.T) {
	p := newProgress(t)

	change := p.TouchActivity(day(1, 10))

	assert.True(t, change.Started)
	assert.True(t, change.Extended)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 1, p.LongestStreak)
	assert.Equal(t, day(1, 10), p.LastActiveAt)
}

func TestTouchActivity_SameDayIsNoOp(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(1, 9))

	change := p.TouchActivity(day(1, 22))

	assert.False(t, change.Extended)
	assert.False(t, change.Broken)
	assert.Equal(t, 1, p.CurrentStreak)
	// LastActiveAt still moves forward within the day.
	assert.Equal(t, day(1, 22), p.LastActiveAt)
}

func TestTouchActivity_ConsecutiveDayExtends(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(1, 23))

	// Only 2 hours later on the clock, but a new calendar day.
	change := p.TouchActivity(day(2, 1))

	assert.True(t, change.Extended)
	assert.Equal(t, 2, p.CurrentStreak)
	assert.Equal(t, 2, p.LongestStreak)
}

func TestTouchActivity_GapResets(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(1, 12))
	p.TouchActivity(day(2, 12))

	change := p.TouchActivity(day(5, 12))

	assert.True(t, change.Broken)
	assert.Equal(t, 2, change.DaysMissed)
	assert.Equal(t, 2, change.PreviousStreak)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 2, p.LongestStreak)
}

// Events on days D, D+1, D+3 must yield streaks 1, 2, 1 with longest 2.
func TestTouchActivity_StreakSequence(t *testing.T) {
	p := newProgress(t)

	p.TouchActivity(day(1, 12))
	assert.Equal(t, 1, p.CurrentStreak)

	p.TouchActivity(day(2, 12))
	assert.Equal(t, 2, p.CurrentStreak)

	p.TouchActivity(day(4, 12))
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 2, p.LongestStreak)
}

func TestTouchActivity_PastEventNeverRewinds(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(2, 12))
	p.TouchActivity(day(3, 12))

	// Replayed event from the previous day: streak and timestamp untouched.
	change := p.TouchActivity(day(2, 18))

	assert.False(t, change.Extended)
	assert.False(t, change.Broken)
	assert.Equal(t, 2, p.CurrentStreak)
	assert.Equal(t, day(3, 12), p.LastActiveAt)
}

func TestTouchActivity_ZonedTimestampNormalizedToUTC(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(1, 12))

	// 03:00+05:00 on March 2 is 22:00 UTC on March 1 - same UTC day.
	almaty := time.FixedZone("UTC+5", 5*60*60)
	change := p.TouchActivity(time.Date(2026, time.March, 2, 3, 0, 0, 0, almaty))

	assert.False(t, change.Extended)
	assert.Equal(t, 1, p.CurrentStreak)
}

func TestStreakAtRisk(t *testing.T) {
	p := newProgress(t)

	assert.False(t, p.StreakAtRisk(day(1, 12)), "no activity yet")

	p.TouchActivity(day(1, 12))
	assert.False(t, p.StreakAtRisk(day(1, 20)), "active today")
	assert.True(t, p.StreakAtRisk(day(2, 20)), "last active yesterday")
	assert.False(t, p.StreakAtRisk(day(3, 20)), "already broken")
}

func TestStreakAlive(t *testing.T) {
	p := newProgress(t)
	p.TouchActivity(day(1, 12))

	assert.True(t, p.StreakAlive(day(1, 20)))
	assert.True(t, p.StreakAlive(day(2, 20)))
	assert.False(t, p.StreakAlive(day(3, 20)))
}

func TestLongestStreakNeverBelowCurrent(t *testing.T) {
	p := newProgress(t)

	for d := 1; d <= 10; d++ {
		p.TouchActivity(day(d, 12))
		assert.GreaterOrEqual(t, p.LongestStreak, p.CurrentStreak)
	}
	assert.Equal(t, 10, p.LongestStreak)
}
