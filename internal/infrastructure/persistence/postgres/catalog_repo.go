package postgres

import (
	"context"
	"fmt"

	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementCatalogRepository implements achievement.CatalogRepository
// for PostgreSQL. The catalog is seeded by migration and treated as
// read-only at runtime.
type AchievementCatalogRepository struct {
	conn *Connection
}

// NewAchievementCatalogRepository creates a new AchievementCatalogRepository.
func NewAchievementCatalogRepository(conn *Connection) *AchievementCatalogRepository {
	return &AchievementCatalogRepository{conn: conn}
}

// LoadCatalog returns all achievement definitions in display order.
// The loaded catalog is validated before being returned so a bad row
// fails loudly instead of silently skewing evaluation.
func (r *AchievementCatalogRepository) LoadCatalog(ctx context.Context) (achievement.Catalog, error) {
	query := `
		SELECT id, title, description, points, metric, comparator, threshold
		FROM achievement_catalog
		ORDER BY sort_order, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement catalog: %w", err)
	}
	defer rows.Close()

	var catalog achievement.Catalog
	for rows.Next() {
		var (
			def        achievement.Definition
			metric     string
			comparator string
		)

		err := rows.Scan(
			&def.ID,
			&def.Title,
			&def.Description,
			&def.Points,
			&metric,
			&comparator,
			&def.Requirement.Threshold,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement definition: %w", err)
		}

		def.Requirement.Metric = achievement.Metric(metric)
		def.Requirement.Comparator = achievement.Comparator(comparator)
		catalog = append(catalog, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate achievement catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("achievement catalog is invalid: %w", err)
	}

	return catalog, nil
}
