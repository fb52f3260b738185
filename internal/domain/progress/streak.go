package progress

import (
	"time"

	"github.com/pmcraft/pmcraft-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK POLICY (Серия активных дней)
// Дни нормализуются к границам календарных суток UTC, чтобы два события
// с разницей в 23 часа на разных календарных днях считались ровно одним днём.
// ══════════════════════════════════════════════════════════════════════════════

// StreakChange описывает результат применения активности к серии.
type StreakChange struct {
	// Extended - серия выросла на 1.
	Extended bool

	// Broken - серия была сброшена пропуском дней.
	Broken bool

	// Started - это первое событие пользователя, серия началась.
	Started bool

	// DaysMissed - сколько дней пропущено (при сбросе).
	DaysMissed int

	// PreviousStreak - длина серии до сброса (при сбросе).
	PreviousStreak int
}

// TouchActivity применяет принятое событие к серии активных дней:
//
//   - первое событие пользователя: серия 1/1;
//   - тот же календарный день UTC: счётчики не меняются;
//   - следующий день: CurrentStreak +1, LongestStreak подтягивается;
//   - пропуск более одного дня: сброс до 1.
//
// LastActiveAt после этого всегда обновляется до now, но никогда не
// откатывается назад: событие со временем раньше LastActiveAt (перекос часов,
// повторная доставка) для серии является no-op.
func (p *UserProgress) TouchActivity(now time.Time) StreakChange {
	now = now.UTC()

	// Первое событие пользователя.
	if p.LastActiveAt.IsZero() {
		p.CurrentStreak = 1
		p.LongestStreak = 1
		p.LastActiveAt = now
		p.UpdatedAt = now
		return StreakChange{Started: true, Extended: true}
	}

	days := timeutil.DaysBetween(p.LastActiveAt, now)

	// Событие из прошлого не откатывает ни серию, ни LastActiveAt.
	if days < 0 || now.Before(p.LastActiveAt) {
		return StreakChange{}
	}

	var change StreakChange

	switch days {
	case 0:
		// Тот же день - счётчики не меняются.
	case 1:
		p.CurrentStreak++
		if p.CurrentStreak > p.LongestStreak {
			p.LongestStreak = p.CurrentStreak
		}
		change.Extended = true
	default:
		change.Broken = true
		change.DaysMissed = days - 1
		change.PreviousStreak = p.CurrentStreak
		p.CurrentStreak = 1
	}

	p.LastActiveAt = now
	p.UpdatedAt = now

	return change
}

// StreakAtRisk возвращает true, если серия пользователя сгорит в ближайшую
// полночь UTC, если он не проявит активность сегодня: последняя активность
// была вчера и серия длиннее нуля.
func (p *UserProgress) StreakAtRisk(now time.Time) bool {
	if p.CurrentStreak == 0 || p.LastActiveAt.IsZero() {
		return false
	}
	return timeutil.DaysBetween(p.LastActiveAt, now.UTC()) == 1
}

// StreakAlive возвращает true, если серия ещё не сломана: последняя
// активность была сегодня или вчера.
func (p *UserProgress) StreakAlive(now time.Time) bool {
	if p.CurrentStreak == 0 || p.LastActiveAt.IsZero() {
		return false
	}
	return timeutil.DaysBetween(p.LastActiveAt, now.UTC()) <= 1
}
