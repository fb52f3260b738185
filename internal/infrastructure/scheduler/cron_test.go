package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_Invalid(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"* * * * * *",
		"61 * * * *",
		"* 25 * * *",
		"*/0 * * * *",
		"5-2 * * * *",
		"x * * * *",
	}

	for _, expr := range cases {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}

func TestCronExpression_NextEvening(t *testing.T) {
	ce := MustParseCronExpression(EveryEvening)

	// До 18:00 - сегодня вечером
	next := ce.Next(time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), next)

	// После 18:00 - завтра вечером
	next = ce.Next(time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextStep(t *testing.T) {
	ce := MustParseCronExpression("*/15 * * * *")

	next := ce.Next(time.Date(2026, 3, 10, 9, 7, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC), next)

	// Next всегда строго после заданного времени
	next = ce.Next(time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextWeekday(t *testing.T) {
	// Воскресенье в полночь
	ce := MustParseCronExpression("0 0 * * 0")

	// 2026-03-10 - вторник; ближайшее воскресенье - 15 марта
	next := ce.Next(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_ListAndRange(t *testing.T) {
	ce, err := ParseCronExpression("0 9,18 * * 1-5")
	require.NoError(t, err)

	// Пятница 18:00 - следующий запуск в понедельник 9:00
	next := ce.Next(time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), next)
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(30 * time.Minute)

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(30*time.Minute), s.Next(base))
	assert.NotEmpty(t, s.String())
}
