package achievement

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// Каталог достижений хранится в БД (сидится миграцией) и кешируется:
// он read-only и общий для всех пользователей.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository определяет загрузку каталога достижений.
type CatalogRepository interface {
	// LoadCatalog возвращает полный каталог достижений.
	// Возвращает ErrCatalogEmpty, если каталог пуст.
	LoadCatalog(ctx context.Context) (Catalog, error)
}

// CatalogCache определяет кеш каталога достижений.
type CatalogCache interface {
	// GetCatalog получает каталог из кеша.
	// Возвращает ErrNotFound при промахе.
	GetCatalog(ctx context.Context) (Catalog, error)

	// SetCatalog сохраняет каталог в кеш.
	SetCatalog(ctx context.Context, catalog Catalog, ttl time.Duration) error

	// InvalidateCatalog удаляет каталог из кеша.
	InvalidateCatalog(ctx context.Context) error
}
