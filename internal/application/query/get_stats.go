// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS QUERY
// Проекция статистики прогресса для чтения - без какой-либо мутации.
// Кеш используется строго read-through: промах читает хранилище и
// заполняет кеш, кеш никогда не является независимым источником записи.
// ══════════════════════════════════════════════════════════════════════════════

// GetStatsQuery содержит параметры запроса статистики.
type GetStatsQuery struct {
	// UserID - идентификатор пользователя.
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q GetStatsQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	return nil
}

// StatsDTO - проекция статистики для API-ответа.
type StatsDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// XP - накопленные очки опыта.
	XP int `json:"xp"`

	// Level - текущий уровень (выводится из XP).
	Level int `json:"level"`

	// XPToNextLevel - XP до следующего уровня.
	XPToNextLevel int `json:"xp_to_next_level"`

	// ScenariosCompleted - пройдено сценариев.
	ScenariosCompleted int `json:"scenarios_completed"`

	// LessonsCompleted - завершено уроков.
	LessonsCompleted int `json:"lessons_completed"`

	// AverageScore - средний лучший результат по пройденным сценариям.
	AverageScore float64 `json:"average_score"`

	// TotalTimeSpent - суммарное время обучения в минутах.
	TotalTimeSpent int `json:"total_time_spent_minutes"`

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak - лучшая серия активных дней.
	LongestStreak int `json:"longest_streak"`

	// LastActiveAt - время последнего принятого события.
	LastActiveAt time.Time `json:"last_active_at"`

	// Achievements - разблокированные достижения.
	Achievements []progress.UnlockedAchievement `json:"achievements"`
}

// statsToDTO строит DTO из доменной проекции.
func statsToDTO(s *progress.Stats) *StatsDTO {
	return &StatsDTO{
		UserID:             s.UserID,
		XP:                 s.XP,
		Level:              s.Level,
		XPToNextLevel:      progress.XPToNextLevel(progress.XP(s.XP)).Int(),
		ScenariosCompleted: s.ScenariosCompleted,
		LessonsCompleted:   s.LessonsCompleted,
		AverageScore:       s.AverageScore,
		TotalTimeSpent:     s.TotalTimeSpent,
		CurrentStreak:      s.CurrentStreak,
		LongestStreak:      s.LongestStreak,
		LastActiveAt:       s.LastActiveAt,
		Achievements:       s.Achievements,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetStatsHandler обрабатывает GetStatsQuery.
type GetStatsHandler struct {
	progressRepo progress.Repository
	statsCache   progress.StatsCache
	cacheTTL     time.Duration
}

// NewGetStatsHandler создаёт новый GetStatsHandler.
func NewGetStatsHandler(progressRepo progress.Repository, statsCache progress.StatsCache, cacheTTL time.Duration) *GetStatsHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GetStatsHandler{
		progressRepo: progressRepo,
		statsCache:   statsCache,
		cacheTTL:     cacheTTL,
	}
}

// Handle выполняет запрос статистики.
// Неизвестный пользователь - это NotFound: движок не выдумывает записи.
func (h *GetStatsHandler) Handle(ctx context.Context, q GetStatsQuery) (*StatsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_stats: %w", err)
	}

	userID, _ := shared.NewUserID(q.UserID)

	if h.statsCache != nil {
		if cached, err := h.statsCache.GetStats(ctx, userID); err == nil && cached != nil {
			return statsToDTO(cached), nil
		}
	}

	p, err := h.progressRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_stats: %w", err)
	}

	stats := p.Snapshot()

	if h.statsCache != nil {
		_ = h.statsCache.SetStats(ctx, &stats, h.cacheTTL)
	}

	return statsToDTO(&stats), nil
}
