package redis

import (
	"context"
	"errors"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// CatalogCache implements achievement.CatalogCache using the generic
// Redis Cache. The catalog is shared by all users under a single key.
type CatalogCache struct {
	cache *Cache
}

// NewCatalogCache creates a new CatalogCache.
func NewCatalogCache(cache *Cache) *CatalogCache {
	return &CatalogCache{cache: cache}
}

// GetCatalog gets the achievement catalog from cache.
// Returns shared.ErrNotFound on a miss.
func (c *CatalogCache) GetCatalog(ctx context.Context) (achievement.Catalog, error) {
	var catalog achievement.Catalog
	if err := c.cache.Get(ctx, CatalogKey(), &catalog); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return catalog, nil
}

// SetCatalog stores the achievement catalog with the given TTL.
func (c *CatalogCache) SetCatalog(ctx context.Context, catalog achievement.Catalog, ttl time.Duration) error {
	if len(catalog) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = TTLCatalogCache
	}
	return c.cache.Set(ctx, CatalogKey(), catalog, ttl)
}

// InvalidateCatalog removes the catalog from cache.
func (c *CatalogCache) InvalidateCatalog(ctx context.Context) error {
	return c.cache.Delete(ctx, CatalogKey())
}

// CachedCatalogRepository decorates a CatalogRepository with read-through
// caching. Event handlers load the catalog on every write, so keeping it
// hot avoids a database round-trip per progress event.
type CachedCatalogRepository struct {
	source achievement.CatalogRepository
	cache  achievement.CatalogCache
	ttl    time.Duration
}

// NewCachedCatalogRepository creates a new CachedCatalogRepository.
func NewCachedCatalogRepository(source achievement.CatalogRepository, cache achievement.CatalogCache, ttl time.Duration) *CachedCatalogRepository {
	if ttl <= 0 {
		ttl = TTLCatalogCache
	}
	return &CachedCatalogRepository{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}
}

// LoadCatalog returns the cached catalog, falling back to the source on
// a miss. Cache failures degrade to the source, never to an error.
func (r *CachedCatalogRepository) LoadCatalog(ctx context.Context) (achievement.Catalog, error) {
	if catalog, err := r.cache.GetCatalog(ctx); err == nil && len(catalog) > 0 {
		return catalog, nil
	}

	catalog, err := r.source.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	_ = r.cache.SetCatalog(ctx, catalog, r.ttl)

	return catalog, nil
}
