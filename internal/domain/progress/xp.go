package progress

import "github.com/pmcraft/pmcraft-hub/internal/domain/shared"

// ══════════════════════════════════════════════════════════════════════════════
// XP & LEVELING POLICY
// Чистые детерминированные функции без побочных эффектов.
// Единственный источник правды для начисления XP и вычисления уровня.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// XPPerLevel - сколько XP нужно на один уровень.
	XPPerLevel = 100

	// FirstAttemptXP - бонус за самую первую попытку сценария.
	// Поощряет само участие, даже без успеха.
	FirstAttemptXP XP = 10

	// ScenarioCompletionBonus - одноразовый бонус за первое прохождение
	// сценария (BestScore впервые достиг порога).
	ScenarioCompletionBonus XP = 25

	// LessonCompletionXP - одноразовое начисление за завершение урока.
	LessonCompletionXP XP = 20

	// ScenarioCompletionThreshold - порог результата, при котором сценарий
	// считается пройденным.
	ScenarioCompletionThreshold shared.Score = 70
)

// LevelFor вычисляет уровень из XP.
// Формула: каждые 100 XP = 1 уровень, нумерация с 1.
// Уровень никогда не хранится отдельно - только вычисляется.
func LevelFor(xp XP) Level {
	if xp < 0 {
		return 1
	}
	return Level(int(xp)/XPPerLevel + 1)
}

// XPToNextLevel возвращает, сколько XP осталось до следующего уровня.
func XPToNextLevel(xp XP) XP {
	if xp < 0 {
		return XP(XPPerLevel)
	}
	next := (int(xp)/XPPerLevel + 1) * XPPerLevel
	return XP(next - int(xp))
}

// AwardForScenario вычисляет начисление XP за попытку сценария:
//
//   - первая попытка по сценарию: +10 XP;
//   - результат превысил прежний лучший: + floor(score/10) XP;
//   - попытка впервые перевела сценарий в completed: + 25 XP бонус,
//     не более одного раза на сценарий.
//
// Составляющие суммируются: первая успешная попытка с результатом 85
// даёт 10 + 8 + 25 = 43 XP.
func AwardForScenario(isFirstAttempt, isNewBest bool, score shared.Score, justCompletedFirstTime bool) XP {
	var award XP

	if isFirstAttempt {
		award += FirstAttemptXP
	}
	if isNewBest {
		award += XP(score.Int() / 10)
	}
	if justCompletedFirstTime {
		award += ScenarioCompletionBonus
	}

	return award
}

// AwardForLesson вычисляет начисление XP за событие урока: +20 XP ровно один
// раз при первом завершении. Повторное завершение даёт 0 (идемпотентность).
func AwardForLesson(justCompletedFirstTime bool) XP {
	if justCompletedFirstTime {
		return LessonCompletionXP
	}
	return 0
}
