package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name  string
		xp    XP
		level Level
	}{
		{"zero XP is level 1", 0, 1},
		{"just below boundary", 99, 1},
		{"exactly at boundary", 100, 2},
		{"mid second level", 150, 2},
		{"high XP", 1050, 11},
		{"negative clamps to level 1", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.level, LevelFor(tt.xp))
		})
	}
}

func TestXPToNextLevel(t *testing.T) {
	assert.Equal(t, XP(100), XPToNextLevel(0))
	assert.Equal(t, XP(1), XPToNextLevel(99))
	assert.Equal(t, XP(100), XPToNextLevel(100))
	assert.Equal(t, XP(37), XPToNextLevel(163))
}

func TestAwardForScenario(t *testing.T) {
	tests := []struct {
		name           string
		isFirstAttempt bool
		isNewBest      bool
		score          int
		justCompleted  bool
		want           XP
	}{
		{"first failing attempt still pays engagement bonus", true, true, 40, false, 10 + 4},
		{"first passing attempt pays everything", true, true, 85, true, 10 + 8 + 25},
		{"repeat attempt below best pays nothing", false, false, 50, false, 0},
		{"new best without completion", false, true, 65, false, 6},
		{"new best crossing the threshold", false, true, 72, true, 7 + 25},
		{"improvement after completion has no second bonus", false, true, 90, false, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AwardForScenario(tt.isFirstAttempt, tt.isNewBest, mustScore(t, tt.score), tt.justCompleted)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAwardForLesson(t *testing.T) {
	assert.Equal(t, LessonCompletionXP, AwardForLesson(true))
	assert.Equal(t, XP(0), AwardForLesson(false))
}

func TestXPNeverDeducted(t *testing.T) {
	x := XP(50)
	assert.Equal(t, XP(50), x.Add(-10))
	assert.Equal(t, XP(50), x.Add(0))
	assert.Equal(t, XP(60), x.Add(10))
}
