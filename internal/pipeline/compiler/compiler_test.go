// internal/pipeline/compiler/compiler_test.go
package compiler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
	"nycdb-insight/pkg/registry"
)

func testRegistry(t *testing.T) *registry.DatasetRegistry {
	t.Helper()
	reg, err := registry.ParseRegistry([]byte(`{
		"version": "test",
		"datasets": [
			{
				"name": "buildings",
				"keyColumn": "bbl",
				"columns": [
					{"name": "address", "type": "text"},
					{"name": "borough", "type": "text"},
					{"name": "year_built", "type": "integer"},
					{"name": "floor_count", "type": "integer"},
					{"name": "unit_count", "type": "integer"},
					{"name": "building_class", "type": "text"}
				]
			},
			{
				"name": "hpd_violations",
				"keyColumn": "bbl",
				"dateColumn": "issue_date",
				"columns": [
					{"name": "issue_date", "type": "date"},
					{"name": "status", "type": "text"},
					{"name": "violation_type", "type": "text"},
					{"name": "source", "type": "text"}
				]
			},
			{
				"name": "dob_violations",
				"keyColumn": "bbl",
				"dateColumn": "issue_date",
				"columns": [
					{"name": "issue_date", "type": "date"},
					{"name": "status", "type": "text"},
					{"name": "violation_type", "type": "text"},
					{"name": "source", "type": "text"}
				]
			},
			{
				"name": "dob_permits",
				"keyColumn": "bbl",
				"dateColumn": "issue_date",
				"columns": [
					{"name": "issue_date", "type": "date"},
					{"name": "permit_type", "type": "text"},
					{"name": "borough", "type": "text"},
					{"name": "building_class", "type": "text"}
				]
			}
		]
	}`))
	require.NoError(t, err)
	return reg
}

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	return New(testRegistry(t), logger.NewNoOpLogger())
}

func TestCompileEmptyQueryDefaults(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("show me buildings")
	q.Intent = models.IntentBuildingLookup

	cq, err := c.Compile(q)
	require.NoError(t, err)

	sql := cq.SQL()
	assert.Contains(t, sql, "FROM buildings")
	assert.Contains(t, sql, "WHERE 1=1")
	assert.Contains(t, sql, "LIMIT 100")
	assert.Empty(t, cq.Params)
}

func TestCompileRiskAssessmentJoinsBothViolationTables(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("most dangerous buildings in Brooklyn")
	q.Intent = models.IntentRiskAssessment
	q.Entities[models.EntityLocation] = []models.EntityValue{
		{Raw: "Brooklyn", Normalized: "Brooklyn", Recognized: true},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	sql := cq.SQL()
	assert.Contains(t, sql, "LEFT JOIN hpd_violations ON buildings.bbl = hpd_violations.bbl")
	assert.Contains(t, sql, "LEFT JOIN dob_violations ON buildings.bbl = dob_violations.bbl")
	assert.Contains(t, sql, "buildings.borough = $1")
	assert.Contains(t, sql, "GROUP BY")
	assert.Equal(t, []interface{}{"Brooklyn"}, cq.Params)
}

func TestCompileBuildingTypePrefix(t *testing.T) {
	tests := []struct {
		name       string
		normalized string
		wantParam  string
	}{
		{"residential maps to R", "residential", "R%"},
		{"commercial maps to C", "commercial", "C%"},
		{"mixed use maps to M", "mixed use", "M%"},
		{"unmapped passes through", "warehouse", "warehouse%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(t)

			q := models.NewStructuredQuery("buildings")
			q.Intent = models.IntentBuildingLookup
			q.Entities[models.EntityBuildingType] = []models.EntityValue{
				{Raw: tt.normalized, Normalized: tt.normalized, Recognized: true},
			}

			cq, err := c.Compile(q)
			require.NoError(t, err)
			require.Len(t, cq.Params, 1)
			assert.Equal(t, tt.wantParam, cq.Params[0])
			assert.Contains(t, cq.SQL(), "buildings.building_class ILIKE $1")
		})
	}
}

func TestCompileUnrecognizedEntitiesSkipped(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("buildings in Springfield")
	q.Intent = models.IntentBuildingLookup
	q.Entities[models.EntityLocation] = []models.EntityValue{
		{Raw: "Springfield", Normalized: "Springfield", Recognized: false},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)
	assert.Empty(t, cq.Params)
	assert.Contains(t, cq.SQL(), "WHERE 1=1")
}

func TestCompileTimePeriodBetween(t *testing.T) {
	c := newTestCompiler(t)

	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	q := models.NewStructuredQuery("violations last year")
	q.Intent = models.IntentViolationSearch
	q.Entities[models.EntityTimePeriod] = []models.EntityValue{
		{Raw: "last year", Normalized: "last year", Recognized: true,
			TimeRange: &models.TimeRange{Start: start, End: end}},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	assert.Contains(t, cq.SQL(), "hpd_violations.issue_date BETWEEN $1 AND $2")
	require.Len(t, cq.Params, 2)
	assert.Equal(t, start, cq.Params[0])
	assert.Equal(t, end, cq.Params[1])
}

func TestCompileTrendTableSelection(t *testing.T) {
	c := newTestCompiler(t)

	permits := models.NewStructuredQuery("construction permit trends in Queens")
	permits.Intent = models.IntentTrendAnalysis

	cq, err := c.Compile(permits)
	require.NoError(t, err)
	assert.Contains(t, cq.SQL(), "FROM dob_permits")
	assert.Contains(t, cq.SQL(), "to_char(dob_permits.issue_date, 'YYYY-MM')")

	violations := models.NewStructuredQuery("how have heat complaints changed")
	violations.Intent = models.IntentTrendAnalysis
	violations.Entities[models.EntityViolationType] = []models.EntityValue{
		{Raw: "heat", Normalized: "HEAT", Recognized: true},
	}

	cq, err = c.Compile(violations)
	require.NoError(t, err)
	assert.Contains(t, cq.SQL(), "FROM hpd_violations")
	assert.Contains(t, cq.SQL(), "hpd_violations.violation_type ILIKE $1")
	assert.Equal(t, []interface{}{"%HEAT%"}, cq.Params)
}

// The trend tables do not carry borough or building_class; those predicates
// must resolve against the joined buildings table.
func TestCompileTrendLocationFiltersOnBuildings(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("violation trends in Brooklyn")
	q.Intent = models.IntentTrendAnalysis
	q.Entities[models.EntityViolationType] = []models.EntityValue{
		{Raw: "heat", Normalized: "HEAT", Recognized: true},
	}
	q.Entities[models.EntityLocation] = []models.EntityValue{
		{Raw: "Brooklyn", Normalized: "Brooklyn", Recognized: true},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	sql := cq.SQL()
	assert.Contains(t, sql, "FROM hpd_violations")
	assert.Contains(t, sql, "LEFT JOIN buildings ON hpd_violations.bbl = buildings.bbl")
	assert.Contains(t, sql, "buildings.borough = $")
	assert.Contains(t, cq.Params, "Brooklyn")
}

func TestCompileExplicitFilters(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("old buildings")
	q.Intent = models.IntentBuildingLookup
	q.Filters = []models.Filter{
		{Table: "buildings", Column: "year_built", Operator: models.OpBetween, Values: []interface{}{1900, 1950}},
		{Table: "buildings", Column: "borough", Operator: models.OpEquals, Values: []interface{}{"Bronx"}},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	sql := cq.SQL()
	assert.Contains(t, sql, "buildings.year_built BETWEEN $1 AND $2")
	assert.Contains(t, sql, "buildings.borough = $3")
	assert.Equal(t, []interface{}{1900, 1950, "Bronx"}, cq.Params)
}

// Placeholder count always matches the parameter list, and every filter
// contributes exactly one predicate.
func TestCompileFilterParamPairing(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("buildings")
	q.Intent = models.IntentBuildingLookup
	q.Filters = []models.Filter{
		{Table: "buildings", Column: "borough", Operator: models.OpEquals, Values: []interface{}{"Queens"}},
		{Table: "buildings", Column: "building_class", Operator: models.OpLike, Values: []interface{}{"R%"}},
		{Table: "buildings", Column: "unit_count", Operator: models.OpBetween, Values: []interface{}{10, 50}},
	}

	cq, err := c.Compile(q)
	require.NoError(t, err)

	assert.Len(t, cq.Predicates, len(q.Filters))

	total := 0
	for _, p := range cq.Predicates {
		total += len(p.Values)
	}
	assert.Equal(t, total, len(cq.Params))
	assert.Equal(t, len(cq.Params), strings.Count(cq.SQL(), "$"))
}

func TestCompileRejectsDisallowedIdentifiers(t *testing.T) {
	c := newTestCompiler(t)

	tests := []struct {
		name   string
		filter models.Filter
	}{
		{"unknown table", models.Filter{Table: "pg_shadow", Column: "usename", Operator: models.OpEquals, Values: []interface{}{"x"}}},
		{"unknown column", models.Filter{Table: "buildings", Column: "password; DROP TABLE buildings", Operator: models.OpEquals, Values: []interface{}{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := models.NewStructuredQuery("sneaky")
			q.Intent = models.IntentBuildingLookup
			q.Filters = []models.Filter{tt.filter}

			_, err := c.Compile(q)
			require.Error(t, err)

			var stdErr *stderrors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, stderrors.ErrCodeIdentifierNotAllowed, stdErr.Code)
		})
	}
}

func TestCompileBetweenRequiresTwoValues(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("bad between")
	q.Intent = models.IntentBuildingLookup
	q.Filters = []models.Filter{
		{Table: "buildings", Column: "year_built", Operator: models.OpBetween, Values: []interface{}{1900}},
	}

	_, err := c.Compile(q)
	require.Error(t, err)

	var stdErr *stderrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, stderrors.ErrCodeValidationError, stdErr.Code)
}

func TestCompileUnknownIntentFallsBackToLookupShape(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("gibberish")

	cq, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, cq.SQL(), "FROM buildings")
}

func TestCompileCustomLimit(t *testing.T) {
	c := newTestCompiler(t)

	q := models.NewStructuredQuery("top 5")
	q.Intent = models.IntentBuildingLookup
	q.Limit = 5

	cq, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, cq.SQL(), "LIMIT 5")
}
