// internal/pipeline/analyzer/breakdown.go
package analyzer

import (
	"sort"

	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/dataaccess"
)

func (a *Analyzer) analyzeViolations(rs *dataaccess.ResultSet, result *models.AnalysisResult) {
	stats := &models.ViolationStats{
		TotalViolations: rs.RowCount,
		ByType:          map[string]int{},
		ByStatus:        map[string]int{},
		BySource:        map[string]int{},
	}

	perBuilding := map[string]*models.RankedBuilding{}

	for _, row := range rs.Rows {
		if t := toString(row["violation_type"]); t != "" {
			stats.ByType[t]++
		}
		if s := toString(row["status"]); s != "" {
			stats.ByStatus[s]++
		}
		if src := toString(row["source"]); src != "" {
			stats.BySource[src]++
		}

		bbl := toString(row["bbl"])
		if bbl == "" {
			continue
		}
		b, ok := perBuilding[bbl]
		if !ok {
			b = &models.RankedBuilding{
				BuildingID: bbl,
				Address:    toString(row["address"]),
				Borough:    toString(row["borough"]),
			}
			perBuilding[bbl] = b
		}
		b.ViolationCount++
	}

	ranked := make([]models.RankedBuilding, 0, len(perBuilding))
	for _, b := range perBuilding {
		ranked = append(ranked, *b)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ViolationCount != ranked[j].ViolationCount {
			return ranked[i].ViolationCount > ranked[j].ViolationCount
		}
		return ranked[i].BuildingID < ranked[j].BuildingID
	})
	if len(ranked) > topRiskCount {
		ranked = ranked[:topRiskCount]
	}
	stats.TopBuildings = ranked

	result.Violation = stats
}

func (a *Analyzer) analyzeBuildings(rs *dataaccess.ResultSet, result *models.AnalysisResult) {
	currentYear := a.clock().Year()

	stats := &models.BuildingStats{
		TotalBuildings: rs.RowCount,
		ByBorough:      map[string]int{},
		ByClass:        map[string]int{},
	}

	var ages, units []float64
	for _, row := range rs.Rows {
		if b := toString(row["borough"]); b != "" {
			stats.ByBorough[b]++
		}
		if c := toString(row["building_class"]); c != "" {
			stats.ByClass[c]++
		}
		if year, ok := toInt(row["year_built"]); ok && year > 0 {
			ages = append(ages, float64(currentYear-year))
		}
		if u, ok := toFloat(row["unit_count"]); ok {
			units = append(units, u)
		}
	}

	if len(ages) > 0 {
		stats.AgeSummary = summarize(ages)
	}
	if len(units) > 0 {
		stats.UnitSummary = summarize(units)
	}

	result.Building = stats
}

func (a *Analyzer) analyzeComparison(rs *dataaccess.ResultSet, result *models.AnalysisResult) {
	stats := &models.ComparisonStats{
		Deltas: map[string]float64{},
	}

	for _, row := range rs.Rows {
		group := toString(row["borough"])
		if group == "" {
			continue
		}
		records, _ := toInt(row["building_count"])
		violations, _ := toInt(row["violation_count"])

		g := models.GroupSummary{
			Group:          group,
			RecordCount:    records,
			ViolationCount: violations,
		}
		if records > 0 {
			g.AverageValue = float64(violations) / float64(records)
		}
		stats.Groups = append(stats.Groups, g)
	}

	sort.SliceStable(stats.Groups, func(i, j int) bool {
		return stats.Groups[i].ViolationCount > stats.Groups[j].ViolationCount
	})

	// Deltas compare every group against the cross-group average rate.
	if len(stats.Groups) > 1 {
		var total float64
		for _, g := range stats.Groups {
			total += g.AverageValue
		}
		avg := total / float64(len(stats.Groups))
		if avg > 0 {
			for _, g := range stats.Groups {
				stats.Deltas[g.Group] = (g.AverageValue - avg) / avg * 100
			}
		}
	}

	result.Comparison = stats
}
