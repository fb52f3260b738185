// Package progress содержит доменную модель прогресса пользователя PMCraft Hub.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package progress

import (
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// XP представляет очки опыта пользователя.
type XP int

// IsValid проверяет, что XP неотрицательный.
func (x XP) IsValid() bool {
	return x >= 0
}

// Add складывает XP. Отрицательные дельты не применяются -
// XP никогда не списывается.
func (x XP) Add(delta XP) XP {
	if delta <= 0 {
		return x
	}
	return x + delta
}

// Int возвращает числовое значение.
func (x XP) Int() int {
	return int(x)
}

// Level представляет уровень пользователя, вычисляемый из XP.
type Level int

// Int возвращает числовое значение.
func (l Level) Int() int {
	return int(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS (записи по отдельным юнитам контента)
// ══════════════════════════════════════════════════════════════════════════════

// ScenarioRecord представляет накопленное состояние по одному практическому
// сценарию.
type ScenarioRecord struct {
	// BestScore - лучший результат (0-100).
	BestScore shared.Score

	// Attempts - количество попыток.
	Attempts int

	// LastAttemptAt - время последней попытки.
	LastAttemptAt time.Time

	// CumulativeTimeSpent - суммарное время в минутах.
	CumulativeTimeSpent shared.Minutes

	// Completed - сценарий пройден (BestScore достиг порога).
	// Монотонный флаг: однажды true - навсегда true.
	Completed bool
}

// LessonRecord представляет накопленное состояние по одному уроку.
type LessonRecord struct {
	// Completed - урок завершён. Монотонный флаг.
	Completed bool

	// CumulativeTimeSpent - суммарное время в минутах.
	CumulativeTimeSpent shared.Minutes

	// LastAccessedAt - время последнего обращения к уроку.
	LastAccessedAt time.Time

	// Score - результат квиза урока, если был (0-100).
	Score *shared.Score
}

// UnlockedAchievement представляет разблокированное достижение.
type UnlockedAchievement struct {
	// AchievementID - идентификатор достижения из каталога.
	AchievementID string

	// UnlockedAt - когда разблокировано.
	UnlockedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// UserProgress - центральный агрегат системы: полное состояние прогресса
// одного пользователя. Ровно одна запись на пользователя, ключ - UserID.
type UserProgress struct {
	// UserID - внешний стабильный идентификатор пользователя.
	UserID shared.UserID

	// ScenarioRecords - состояние по каждому сценарию (ключ - ID сценария).
	ScenarioRecords map[string]*ScenarioRecord

	// LessonRecords - состояние по каждому уроку (ключ - ID урока).
	LessonRecords map[string]*LessonRecord

	// TotalTimeSpent - суммарное время обучения в минутах.
	TotalTimeSpent shared.Minutes

	// XP - накопленные очки опыта.
	XP XP

	// Level - текущий уровень. Всегда равен LevelFor(XP);
	// пересчитывается после каждой мутации XP.
	Level Level

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int

	// LongestStreak - лучшая серия активных дней.
	LongestStreak int

	// LastActiveAt - время последнего принятого события.
	LastActiveAt time.Time

	// UnlockedAchievements - разблокированные достижения (append-only).
	UnlockedAchievements []UnlockedAchievement

	// Version - токен оптимистичной блокировки. Инкрементируется
	// хранилищем при каждой успешной записи.
	Version int64

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewUserProgress создаёт обнулённую запись прогресса для нового пользователя.
// Вызывается ровно один раз на пользователя провайдером идентичности.
func NewUserProgress(userID shared.UserID) (*UserProgress, error) {
	if !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	now := time.Now().UTC()

	return &UserProgress{
		UserID:               userID,
		ScenarioRecords:      make(map[string]*ScenarioRecord),
		LessonRecords:        make(map[string]*LessonRecord),
		TotalTimeSpent:       0,
		XP:                   0,
		Level:                LevelFor(0),
		CurrentStreak:        0,
		LongestStreak:        0,
		LastActiveAt:         time.Time{},
		UnlockedAchievements: nil,
		Version:              0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// ScenarioOutcome описывает результат применения попытки сценария.
type ScenarioOutcome struct {
	// XPDelta - начисленный за попытку XP.
	XPDelta XP

	// IsFirstAttempt - это была первая попытка по сценарию.
	IsFirstAttempt bool

	// IsNewBest - результат превысил прежний лучший.
	IsNewBest bool

	// JustCompleted - попытка впервые перевела сценарий в completed.
	JustCompleted bool

	// LeveledUp - начисление пересекло границу уровня.
	LeveledUp bool

	// OldLevel, NewLevel - уровень до и после начисления.
	OldLevel Level
	NewLevel Level
}

// RecordScenarioAttempt применяет попытку сценария: обновляет запись сценария,
// суммарное время, начисляет XP по политике и пересчитывает уровень.
// Серия дней обновляется отдельно через TouchActivity.
func (p *UserProgress) RecordScenarioAttempt(scenarioID shared.ContentID, score shared.Score, timeSpent shared.Minutes, now time.Time) (ScenarioOutcome, error) {
	if !scenarioID.IsValid() {
		return ScenarioOutcome{}, shared.ErrInvalidScenarioID
	}
	if !score.IsValid() {
		return ScenarioOutcome{}, shared.ErrInvalidScore
	}
	if !timeSpent.IsValid() {
		return ScenarioOutcome{}, shared.ErrInvalidTimeSpent
	}

	now = now.UTC()

	rec, exists := p.ScenarioRecords[scenarioID.String()]
	if !exists {
		rec = &ScenarioRecord{}
		p.ScenarioRecords[scenarioID.String()] = rec
	}

	outcome := ScenarioOutcome{
		IsFirstAttempt: rec.Attempts == 0,
		IsNewBest:      rec.Attempts == 0 || score > rec.BestScore,
		OldLevel:       p.Level,
	}

	rec.Attempts++
	rec.LastAttemptAt = now
	rec.CumulativeTimeSpent = rec.CumulativeTimeSpent.Add(timeSpent)
	if score > rec.BestScore {
		rec.BestScore = score
	}

	// Completed монотонен: выставляется один раз при достижении порога
	// и никогда не снимается более низким результатом.
	if !rec.Completed && rec.BestScore >= ScenarioCompletionThreshold {
		rec.Completed = true
		outcome.JustCompleted = true
	}

	p.TotalTimeSpent = p.TotalTimeSpent.Add(timeSpent)

	outcome.XPDelta = AwardForScenario(outcome.IsFirstAttempt, outcome.IsNewBest, score, outcome.JustCompleted)
	p.addXP(outcome.XPDelta)

	outcome.NewLevel = p.Level
	outcome.LeveledUp = outcome.NewLevel > outcome.OldLevel
	p.UpdatedAt = now

	return outcome, nil
}

// LessonOutcome описывает результат применения события урока.
type LessonOutcome struct {
	// XPDelta - начисленный XP (0 при повторном завершении).
	XPDelta XP

	// JustCompleted - урок впервые перешёл в completed.
	JustCompleted bool

	// LeveledUp - начисление пересекло границу уровня.
	LeveledUp bool

	// OldLevel, NewLevel - уровень до и после начисления.
	OldLevel Level
	NewLevel Level
}

// RecordLessonEvent применяет событие урока: накапливает время, при первом
// завершении выставляет completed, сохраняет score и начисляет XP.
// Повторное завершение идемпотентно - меняет только время и LastAccessedAt.
func (p *UserProgress) RecordLessonEvent(lessonID shared.ContentID, completed bool, timeSpent shared.Minutes, score *shared.Score, now time.Time) (LessonOutcome, error) {
	if !lessonID.IsValid() {
		return LessonOutcome{}, shared.ErrInvalidLessonID
	}
	if !timeSpent.IsValid() {
		return LessonOutcome{}, shared.ErrInvalidTimeSpent
	}
	if score != nil && !score.IsValid() {
		return LessonOutcome{}, shared.ErrInvalidScore
	}

	now = now.UTC()

	rec, exists := p.LessonRecords[lessonID.String()]
	if !exists {
		rec = &LessonRecord{}
		p.LessonRecords[lessonID.String()] = rec
	}

	outcome := LessonOutcome{OldLevel: p.Level}

	rec.CumulativeTimeSpent = rec.CumulativeTimeSpent.Add(timeSpent)
	rec.LastAccessedAt = now

	if completed && !rec.Completed {
		rec.Completed = true
		if score != nil {
			s := *score
			rec.Score = &s
		}
		outcome.JustCompleted = true
	}

	p.TotalTimeSpent = p.TotalTimeSpent.Add(timeSpent)

	outcome.XPDelta = AwardForLesson(outcome.JustCompleted)
	p.addXP(outcome.XPDelta)

	outcome.NewLevel = p.Level
	outcome.LeveledUp = outcome.NewLevel > outcome.OldLevel
	p.UpdatedAt = now

	return outcome, nil
}

// UnlockAchievement добавляет достижение и начисляет его очки через обычную
// XP-политику. Возвращает ErrAchievementUnlocked при повторной разблокировке.
func (p *UserProgress) UnlockAchievement(achievementID string, points XP, now time.Time) error {
	if p.HasAchievement(achievementID) {
		return shared.ErrAchievementUnlocked
	}

	p.UnlockedAchievements = append(p.UnlockedAchievements, UnlockedAchievement{
		AchievementID: achievementID,
		UnlockedAt:    now.UTC(),
	})
	p.addXP(points)
	p.UpdatedAt = now.UTC()

	return nil
}

// HasAchievement проверяет, разблокировано ли достижение.
func (p *UserProgress) HasAchievement(achievementID string) bool {
	for _, a := range p.UnlockedAchievements {
		if a.AchievementID == achievementID {
			return true
		}
	}
	return false
}

// addXP начисляет XP и немедленно пересчитывает уровень, чтобы инвариант
// Level == LevelFor(XP) держался после каждой мутации.
func (p *UserProgress) addXP(delta XP) {
	p.XP = p.XP.Add(delta)
	p.Level = LevelFor(p.XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS (снимки для достижений и статистики)
// ══════════════════════════════════════════════════════════════════════════════

// ScenariosCompleted возвращает количество пройденных сценариев.
func (p *UserProgress) ScenariosCompleted() int {
	count := 0
	for _, rec := range p.ScenarioRecords {
		if rec.Completed {
			count++
		}
	}
	return count
}

// LessonsCompleted возвращает количество завершённых уроков.
func (p *UserProgress) LessonsCompleted() int {
	count := 0
	for _, rec := range p.LessonRecords {
		if rec.Completed {
			count++
		}
	}
	return count
}

// AverageScore возвращает средний лучший результат по пройденным сценариям.
// Если пройденных сценариев нет - 0.
func (p *UserProgress) AverageScore() float64 {
	sum := 0
	count := 0
	for _, rec := range p.ScenarioRecords {
		if rec.Completed {
			sum += rec.BestScore.Int()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// Stats - проекция прогресса для чтения (API-ответы, кеш).
type Stats struct {
	UserID             string                `json:"user_id"`
	XP                 int                   `json:"xp"`
	Level              int                   `json:"level"`
	ScenariosCompleted int                   `json:"scenarios_completed"`
	LessonsCompleted   int                   `json:"lessons_completed"`
	AverageScore       float64               `json:"average_score"`
	TotalTimeSpent     int                   `json:"total_time_spent_minutes"`
	CurrentStreak      int                   `json:"current_streak"`
	LongestStreak      int                   `json:"longest_streak"`
	LastActiveAt       time.Time             `json:"last_active_at"`
	Achievements       []UnlockedAchievement `json:"achievements"`
}

// Snapshot возвращает проекцию текущего состояния для чтения.
func (p *UserProgress) Snapshot() Stats {
	achievements := make([]UnlockedAchievement, len(p.UnlockedAchievements))
	copy(achievements, p.UnlockedAchievements)

	return Stats{
		UserID:             p.UserID.String(),
		XP:                 p.XP.Int(),
		Level:              p.Level.Int(),
		ScenariosCompleted: p.ScenariosCompleted(),
		LessonsCompleted:   p.LessonsCompleted(),
		AverageScore:       p.AverageScore(),
		TotalTimeSpent:     p.TotalTimeSpent.Int(),
		CurrentStreak:      p.CurrentStreak,
		LongestStreak:      p.LongestStreak,
		LastActiveAt:       p.LastActiveAt,
		Achievements:       achievements,
	}
}

// String возвращает строковое представление для логирования.
func (p *UserProgress) String() string {
	return fmt.Sprintf(
		"UserProgress{UserID: %s, XP: %d, Level: %d, Streak: %d/%d, Version: %d}",
		p.UserID, p.XP, p.Level, p.CurrentStreak, p.LongestStreak, p.Version,
	)
}

// Clone создаёт глубокую копию агрегата.
func (p *UserProgress) Clone() *UserProgress {
	if p == nil {
		return nil
	}

	clone := *p

	clone.ScenarioRecords = make(map[string]*ScenarioRecord, len(p.ScenarioRecords))
	for id, rec := range p.ScenarioRecords {
		r := *rec
		clone.ScenarioRecords[id] = &r
	}

	clone.LessonRecords = make(map[string]*LessonRecord, len(p.LessonRecords))
	for id, rec := range p.LessonRecords {
		r := *rec
		if rec.Score != nil {
			s := *rec.Score
			r.Score = &s
		}
		clone.LessonRecords[id] = &r
	}

	clone.UnlockedAchievements = make([]UnlockedAchievement, len(p.UnlockedAchievements))
	copy(clone.UnlockedAchievements, p.UnlockedAchievements)

	return &clone
}
