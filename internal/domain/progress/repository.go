package progress

import (
	"context"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем прогресса.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над записями прогресса пользователей.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create создаёт обнулённую запись прогресса.
	// Возвращает ErrProgressAlreadyExists, если запись уже существует.
	Create(ctx context.Context, p *UserProgress) error

	// GetByUserID возвращает запись прогресса пользователя.
	// Возвращает ErrProgressNotFound, если записи нет.
	GetByUserID(ctx context.Context, userID shared.UserID) (*UserProgress, error)

	// Save атомарно записывает полную запись, сравнивая Version
	// (compare-and-swap). При несовпадении версии возвращает
	// ErrProgressConflict - оркестратор перечитывает и повторяет цикл.
	// При успехе Version в переданном агрегате инкрементируется.
	Save(ctx context.Context, p *UserProgress) error

	// Delete удаляет запись прогресса (удаление аккаунта).
	// Возвращает ErrProgressNotFound, если записи нет.
	Delete(ctx context.Context, userID shared.UserID) error

	// Exists проверяет существование записи.
	Exists(ctx context.Context, userID shared.UserID) (bool, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Sweep Queries
	// ─────────────────────────────────────────────────────────────────────────

	// FindStreaksAtRisk возвращает записи пользователей, чья серия сгорит
	// в ближайшую полночь UTC: последняя активность в указанном дне
	// (вчера относительно now) и ненулевая серия.
	FindStreaksAtRisk(ctx context.Context, now time.Time, limit int) ([]*UserProgress, error)

	// Count возвращает общее количество записей прогресса.
	Count(ctx context.Context) (int, error)
}

// StatsCache определяет кеш проекций статистики.
// Кеш - это read-through проекция: он никогда не является независимым
// источником записи, только отражает зафиксированное состояние хранилища.
type StatsCache interface {
	// GetStats получает проекцию из кеша.
	// Возвращает ErrNotFound при промахе.
	GetStats(ctx context.Context, userID shared.UserID) (*Stats, error)

	// SetStats сохраняет проекцию в кеш.
	SetStats(ctx context.Context, stats *Stats, ttl time.Duration) error

	// Invalidate удаляет проекцию пользователя из кеша.
	// Вызывается после каждой успешной записи прогресса.
	Invalidate(ctx context.Context, userID shared.UserID) error
}
