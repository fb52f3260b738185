package query

import (
	"context"
	"fmt"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Возвращает ВЕСЬ каталог достижений с пометкой, какие из них пользователь
// уже разблокировал и когда. Каталог общий, разблокировки - из записи
// прогресса пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса достижений.
type GetAchievementsQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// OnlyUnlocked - вернуть только разблокированные.
	OnlyUnlocked bool
}

// Validate проверяет корректность параметров запроса.
func (q GetAchievementsQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	return nil
}

// AchievementDTO - одно достижение каталога с состоянием пользователя.
type AchievementDTO struct {
	// ID - идентификатор достижения.
	ID string `json:"id"`

	// Title - название.
	Title string `json:"title"`

	// Description - описание условия.
	Description string `json:"description"`

	// Points - XP за разблокировку.
	Points int `json:"points"`

	// Unlocked - разблокировано ли пользователем.
	Unlocked bool `json:"unlocked"`

	// UnlockedAt - когда разблокировано (если разблокировано).
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsHandler обрабатывает GetAchievementsQuery.
type GetAchievementsHandler struct {
	progressRepo progress.Repository
	catalogRepo  achievement.CatalogRepository
}

// NewGetAchievementsHandler создаёт новый GetAchievementsHandler.
func NewGetAchievementsHandler(progressRepo progress.Repository, catalogRepo achievement.CatalogRepository) *GetAchievementsHandler {
	return &GetAchievementsHandler{
		progressRepo: progressRepo,
		catalogRepo:  catalogRepo,
	}
}

// Handle выполняет запрос достижений.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) ([]AchievementDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	userID, _ := shared.NewUserID(q.UserID)

	p, err := h.progressRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	catalog, err := h.catalogRepo.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	unlockedAt := make(map[string]time.Time, len(p.UnlockedAchievements))
	for _, u := range p.UnlockedAchievements {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	result := make([]AchievementDTO, 0, len(catalog))
	for _, def := range catalog {
		at, unlocked := unlockedAt[def.ID]
		if q.OnlyUnlocked && !unlocked {
			continue
		}

		dto := AchievementDTO{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Points:      def.Points,
			Unlocked:    unlocked,
		}
		if unlocked {
			t := at
			dto.UnlockedAt = &t
		}
		result = append(result, dto)
	}

	return result, nil
}
