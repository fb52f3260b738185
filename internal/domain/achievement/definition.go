// Package achievement содержит доменную модель достижений PMCraft Hub.
// Каталог достижений - это данные, а не код: новое достижение добавляется
// строкой каталога, без изменения логики вычисления.
package achievement

import (
	"strings"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENT VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Metric определяет метрику прогресса, по которой проверяется достижение.
type Metric string

const (
	// MetricScenariosCompleted - количество пройденных сценариев.
	MetricScenariosCompleted Metric = "scenarios_completed"
	// MetricLessonsCompleted - количество завершённых уроков.
	MetricLessonsCompleted Metric = "lessons_completed"
	// MetricStreak - текущая серия активных дней.
	MetricStreak Metric = "streak"
	// MetricAverageScore - средний лучший результат по пройденным сценариям.
	MetricAverageScore Metric = "average_score"
	// MetricTotalTimeSpent - суммарное время обучения в минутах.
	MetricTotalTimeSpent Metric = "total_time_spent"
	// MetricLevel - текущий уровень.
	MetricLevel Metric = "level"
)

// IsValid проверяет, что метрика известна.
func (m Metric) IsValid() bool {
	switch m {
	case MetricScenariosCompleted, MetricLessonsCompleted, MetricStreak,
		MetricAverageScore, MetricTotalTimeSpent, MetricLevel:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление метрики.
func (m Metric) String() string {
	return string(m)
}

// Comparator определяет оператор сравнения метрики с порогом.
type Comparator string

const (
	// ComparatorGTE - метрика >= порога.
	ComparatorGTE Comparator = ">="
	// ComparatorLTE - метрика <= порога.
	ComparatorLTE Comparator = "<="
	// ComparatorEQ - метрика == порогу.
	ComparatorEQ Comparator = "="
	// ComparatorGT - метрика > порога.
	ComparatorGT Comparator = ">"
	// ComparatorLT - метрика < порога.
	ComparatorLT Comparator = "<"
)

// IsValid проверяет, что оператор известен.
func (c Comparator) IsValid() bool {
	switch c {
	case ComparatorGTE, ComparatorLTE, ComparatorEQ, ComparatorGT, ComparatorLT:
		return true
	default:
		return false
	}
}

// Compare применяет оператор к значению метрики и порогу.
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case ComparatorGTE:
		return value >= threshold
	case ComparatorLTE:
		return value <= threshold
	case ComparatorEQ:
		return value == threshold
	case ComparatorGT:
		return value > threshold
	case ComparatorLT:
		return value < threshold
	default:
		return false
	}
}

// Requirement описывает условие разблокировки достижения.
type Requirement struct {
	// Metric - какая метрика проверяется.
	Metric Metric `json:"metric"`

	// Comparator - оператор сравнения.
	Comparator Comparator `json:"comparator"`

	// Threshold - пороговое значение.
	Threshold float64 `json:"threshold"`
}

// Validate проверяет корректность условия.
func (r Requirement) Validate() error {
	if !r.Metric.IsValid() {
		return shared.ErrUnknownMetric
	}
	if !r.Comparator.IsValid() {
		return shared.ErrUnknownComparator
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition описывает одно достижение из read-only каталога.
type Definition struct {
	// ID - стабильный идентификатор достижения.
	ID string `json:"id"`

	// Title - отображаемое название.
	Title string `json:"title"`

	// Description - описание условия для пользователя.
	Description string `json:"description"`

	// Points - XP, начисляемый при разблокировке.
	Points int `json:"points"`

	// Requirement - условие разблокировки.
	Requirement Requirement `json:"requirement"`
}

// Validate проверяет корректность определения.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Title) == "" {
		return shared.ErrInvalidDefinition
	}
	if d.Points < 0 {
		return shared.ErrInvalidDefinition
	}
	return d.Requirement.Validate()
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - упорядоченный набор определений достижений.
// Каталог read-only и безопасно разделяется между всеми пользователями.
type Catalog []Definition

// Validate проверяет каталог: непустой, без дубликатов, все определения валидны.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return shared.ErrCatalogEmpty
	}

	seen := make(map[string]bool, len(c))
	for _, def := range c {
		if err := def.Validate(); err != nil {
			return err
		}
		if seen[def.ID] {
			return shared.ErrDuplicateAchievement
		}
		seen[def.ID] = true
	}
	return nil
}

// FindByID возвращает определение по ID.
func (c Catalog) FindByID(id string) (Definition, bool) {
	for _, def := range c {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// DefaultCatalog возвращает встроенный каталог достижений.
// Используется для сидинга хранилища и как fallback в тестах.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:          "first-steps",
			Title:       "Первые шаги",
			Description: "Завершён первый урок",
			Points:      25,
			Requirement: Requirement{Metric: MetricLessonsCompleted, Comparator: ComparatorGTE, Threshold: 1},
		},
		{
			ID:          "first-win",
			Title:       "Первая победа",
			Description: "Пройден первый практический сценарий",
			Points:      50,
			Requirement: Requirement{Metric: MetricScenariosCompleted, Comparator: ComparatorGTE, Threshold: 1},
		},
		{
			ID:          "scenario-master",
			Title:       "Мастер сценариев",
			Description: "Пройдено 10 практических сценариев",
			Points:      200,
			Requirement: Requirement{Metric: MetricScenariosCompleted, Comparator: ComparatorGTE, Threshold: 10},
		},
		{
			ID:          "curriculum-half",
			Title:       "Экватор",
			Description: "Завершено 15 уроков",
			Points:      150,
			Requirement: Requirement{Metric: MetricLessonsCompleted, Comparator: ComparatorGTE, Threshold: 15},
		},
		{
			ID:          "week-of-fire",
			Title:       "Неделя огня",
			Description: "7 дней подряд",
			Points:      100,
			Requirement: Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 7},
		},
		{
			ID:          "iron-will",
			Title:       "Железная воля",
			Description: "30 дней подряд",
			Points:      500,
			Requirement: Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 30},
		},
		{
			ID:          "sharp-mind",
			Title:       "Острый ум",
			Description: "Средний результат 85 и выше",
			Points:      150,
			Requirement: Requirement{Metric: MetricAverageScore, Comparator: ComparatorGTE, Threshold: 85},
		},
		{
			ID:          "marathoner",
			Title:       "Марафонец",
			Description: "10 часов обучения суммарно",
			Points:      100,
			Requirement: Requirement{Metric: MetricTotalTimeSpent, Comparator: ComparatorGTE, Threshold: 600},
		},
		{
			ID:          "apprentice",
			Title:       "Подмастерье",
			Description: "Достигнут 5 уровень",
			Points:      100,
			Requirement: Requirement{Metric: MetricLevel, Comparator: ComparatorGTE, Threshold: 5},
		},
		{
			ID:          "master",
			Title:       "Мастер",
			Description: "Достигнут 10 уровень",
			Points:      250,
			Requirement: Requirement{Metric: MetricLevel, Comparator: ComparatorGTE, Threshold: 10},
		},
	}
}
