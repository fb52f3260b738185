package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

func TestComparatorCompare(t *testing.T) {
	tests := []struct {
		comparator Comparator
		value      float64
		threshold  float64
		want       bool
	}{
		{ComparatorGTE, 7, 7, true},
		{ComparatorGTE, 6, 7, false},
		{ComparatorLTE, 7, 7, true},
		{ComparatorLTE, 8, 7, false},
		{ComparatorEQ, 5, 5, true},
		{ComparatorEQ, 5, 6, false},
		{ComparatorGT, 8, 7, true},
		{ComparatorGT, 7, 7, false},
		{ComparatorLT, 6, 7, true},
		{ComparatorLT, 7, 7, false},
	}

	for _, tt := range tests {
		got := tt.comparator.Compare(tt.value, tt.threshold)
		assert.Equal(t, tt.want, got, "%v %s %v", tt.value, tt.comparator, tt.threshold)
	}
}

func TestRequirementValidate(t *testing.T) {
	valid := Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 7}
	assert.NoError(t, valid.Validate())

	badMetric := Requirement{Metric: "followers", Comparator: ComparatorGTE, Threshold: 7}
	assert.ErrorIs(t, badMetric.Validate(), shared.ErrUnknownMetric)

	badComparator := Requirement{Metric: MetricStreak, Comparator: "~", Threshold: 7}
	assert.ErrorIs(t, badComparator.Validate(), shared.ErrUnknownComparator)
}

func TestDefinitionValidate(t *testing.T) {
	def := Definition{
		ID:          "week-of-fire",
		Title:       "Неделя огня",
		Points:      100,
		Requirement: Requirement{Metric: MetricStreak, Comparator: ComparatorGTE, Threshold: 7},
	}
	assert.NoError(t, def.Validate())

	noID := def
	noID.ID = "  "
	assert.ErrorIs(t, noID.Validate(), shared.ErrInvalidDefinition)

	negativePoints := def
	negativePoints.Points = -10
	assert.ErrorIs(t, negativePoints.Validate(), shared.ErrInvalidDefinition)
}

func TestCatalogValidate(t *testing.T) {
	assert.ErrorIs(t, Catalog{}.Validate(), shared.ErrCatalogEmpty)

	duplicate := Catalog{
		{ID: "a", Title: "A", Points: 10, Requirement: Requirement{Metric: MetricLevel, Comparator: ComparatorGTE, Threshold: 2}},
		{ID: "a", Title: "A again", Points: 10, Requirement: Requirement{Metric: MetricLevel, Comparator: ComparatorGTE, Threshold: 3}},
	}
	assert.ErrorIs(t, duplicate.Validate(), shared.ErrDuplicateAchievement)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog := DefaultCatalog()
	assert.NoError(t, catalog.Validate())

	def, ok := catalog.FindByID("week-of-fire")
	assert.True(t, ok)
	assert.Equal(t, MetricStreak, def.Requirement.Metric)

	_, ok = catalog.FindByID("no-such-achievement")
	assert.False(t, ok)
}
