package achievement

import (
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVALUATOR
// Чистая функция над снимком прогресса и каталогом. Никаких побочных
// эффектов и I/O - её можно звать повторно сколько угодно раз.
// Саму разблокировку (append + начисление Points) выполняет оркестратор,
// строго не более одного раза на достижение на пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// Evaluate возвращает определения достижений, чьё условие выполнено
// текущим состоянием прогресса и которые ещё не разблокированы.
func Evaluate(p *progress.UserProgress, catalog Catalog) []Definition {
	if p == nil || len(catalog) == 0 {
		return nil
	}

	var newlySatisfied []Definition
	for _, def := range catalog {
		if p.HasAchievement(def.ID) {
			continue
		}
		if def.Requirement.Comparator.Compare(MetricValue(p, def.Requirement.Metric), def.Requirement.Threshold) {
			newlySatisfied = append(newlySatisfied, def)
		}
	}
	return newlySatisfied
}

// MetricValue вычисляет значение метрики из снимка прогресса.
// Неизвестная метрика даёт 0 - каталог валидируется при загрузке,
// сюда такая попасть не должна.
func MetricValue(p *progress.UserProgress, metric Metric) float64 {
	switch metric {
	case MetricScenariosCompleted:
		return float64(p.ScenariosCompleted())
	case MetricLessonsCompleted:
		return float64(p.LessonsCompleted())
	case MetricStreak:
		return float64(p.CurrentStreak)
	case MetricAverageScore:
		return p.AverageScore()
	case MetricTotalTimeSpent:
		return float64(p.TotalTimeSpent.Int())
	case MetricLevel:
		return float64(p.Level.Int())
	default:
		return 0
	}
}
