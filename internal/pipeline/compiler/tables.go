// internal/pipeline/compiler/tables.go
package compiler

import (
	"strings"

	"nycdb-insight/internal/models"
)

// Join links two tables on a shared column.
type Join struct {
	LeftTable  string
	RightTable string
	Column     string
}

// queryShape is the fixed per-intent SQL skeleton: which tables to read, how
// they join, what to select, and how to group and order by default.
type queryShape struct {
	BaseTable   string
	Joins       []Join
	Select      []string
	GroupBy     []string
	OrderBy     string
	DateTable   string // table whose date column takes time-period predicates
	FilterTable string // table taking borough/building-type predicates
}

// shapeFor returns the compilation shape for an intent. Intents outside the
// closed set fall back to the building_lookup shape; compilation never fails
// for a recognized-but-empty query.
func shapeFor(intent models.Intent, q models.StructuredQuery) queryShape {
	switch intent {
	case models.IntentRiskAssessment:
		return queryShape{
			BaseTable: "buildings",
			Joins: []Join{
				{LeftTable: "buildings", RightTable: "hpd_violations", Column: "bbl"},
				{LeftTable: "buildings", RightTable: "dob_violations", Column: "bbl"},
			},
			Select: []string{
				"buildings.bbl", "buildings.address", "buildings.borough",
				"buildings.year_built", "buildings.building_class", "buildings.unit_count",
				"COUNT(DISTINCT hpd_violations.issue_date) + COUNT(DISTINCT dob_violations.issue_date) AS violation_count",
			},
			GroupBy: []string{
				"buildings.bbl", "buildings.address", "buildings.borough",
				"buildings.year_built", "buildings.building_class", "buildings.unit_count",
			},
			OrderBy:     "violation_count DESC",
			DateTable:   "hpd_violations",
			FilterTable: "buildings",
		}

	case models.IntentTrendAnalysis:
		table := trendTable(q)
		return queryShape{
			BaseTable: table,
			// buildings carries borough and building_class; the trend tables
			// themselves are not guaranteed to.
			Joins: []Join{
				{LeftTable: table, RightTable: "buildings", Column: "bbl"},
			},
			Select: []string{
				"to_char(" + table + ".issue_date, 'YYYY-MM') AS period",
				"COUNT(*) AS value",
			},
			GroupBy:     []string{"period"},
			OrderBy:     "period ASC",
			DateTable:   table,
			FilterTable: "buildings",
		}

	case models.IntentViolationSearch:
		return queryShape{
			BaseTable: "hpd_violations",
			Joins: []Join{
				{LeftTable: "hpd_violations", RightTable: "buildings", Column: "bbl"},
			},
			Select: []string{
				"hpd_violations.bbl", "hpd_violations.issue_date", "hpd_violations.status",
				"hpd_violations.violation_type", "hpd_violations.source",
				"buildings.address", "buildings.borough", "buildings.building_class",
			},
			OrderBy:     "hpd_violations.issue_date DESC",
			DateTable:   "hpd_violations",
			FilterTable: "buildings",
		}

	case models.IntentComparison:
		return queryShape{
			BaseTable: "buildings",
			Joins: []Join{
				{LeftTable: "buildings", RightTable: "hpd_violations", Column: "bbl"},
			},
			Select: []string{
				"buildings.borough",
				"COUNT(DISTINCT buildings.bbl) AS building_count",
				"COUNT(hpd_violations.issue_date) AS violation_count",
			},
			GroupBy:     []string{"buildings.borough"},
			OrderBy:     "violation_count DESC",
			DateTable:   "hpd_violations",
			FilterTable: "buildings",
		}

	case models.IntentGeneralStats:
		return queryShape{
			BaseTable: "buildings",
			Select: []string{
				"buildings.bbl", "buildings.borough", "buildings.year_built",
				"buildings.floor_count", "buildings.unit_count", "buildings.building_class",
			},
			FilterTable: "buildings",
		}

	default: // building_lookup and anything outside the closed set
		return queryShape{
			BaseTable: "buildings",
			Select: []string{
				"buildings.bbl", "buildings.address", "buildings.borough",
				"buildings.year_built", "buildings.floor_count", "buildings.unit_count",
				"buildings.building_class",
			},
			OrderBy:     "buildings.bbl ASC",
			FilterTable: "buildings",
		}
	}
}

// trendTable picks permits vs violations from entity hints.
func trendTable(q models.StructuredQuery) string {
	if _, ok := q.Entities.First(models.EntityViolationType); ok {
		return "hpd_violations"
	}
	if strings.Contains(strings.ToLower(q.OriginalQuery), "permit") {
		return "dob_permits"
	}
	return "hpd_violations"
}

// buildingClassCodes maps normalized building types onto class-code prefixes.
var buildingClassCodes = map[string]string{
	"residential": "R",
	"commercial":  "C",
	"mixed use":   "M",
	"industrial":  "F",
}
