// internal/pipeline/analyzer/risk.go
package analyzer

import (
	"sort"

	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/dataaccess"
)

const topRiskCount = 10

// RiskScore combines building age and violation load into a 0-100 score.
// Age contributes linearly between 10 and 100 years and is clamped outside
// that band; violations contribute 5 points each up to 100.
func RiskScore(age, violationCount int) float64 {
	var ageScore float64
	switch {
	case age >= 100:
		ageScore = 100
	case age <= 10:
		ageScore = 10
	default:
		ageScore = float64(age)
	}

	violationScore := float64(violationCount) * 5
	if violationScore > 100 {
		violationScore = 100
	}
	if violationCount <= 0 {
		violationScore = 0
	}

	return (ageScore + violationScore) / 2
}

// LevelForScore buckets a risk score.
func LevelForScore(score float64) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskHigh
	case score >= 50:
		return models.RiskMedium
	case score >= 20:
		return models.RiskLow
	default:
		return models.RiskMinimal
	}
}

func (a *Analyzer) analyzeRisk(rs *dataaccess.ResultSet, result *models.AnalysisResult) {
	currentYear := a.clock().Year()

	risk := &models.RiskStats{
		RiskLevelCounts: map[models.RiskLevel]int{},
		ByBorough:       map[string]int{},
	}

	ranked := make([]models.RankedBuilding, 0, rs.RowCount)
	var totalScore float64
	var totalViolations int

	for _, row := range rs.Rows {
		age := 0
		if year, ok := toInt(row["year_built"]); ok && year > 0 {
			age = currentYear - year
		}
		violations, _ := toInt(row["violation_count"])

		score := RiskScore(age, violations)
		level := LevelForScore(score)

		b := models.RankedBuilding{
			BuildingID:     toString(row["bbl"]),
			Address:        toString(row["address"]),
			Borough:        toString(row["borough"]),
			Age:            age,
			ViolationCount: violations,
			RiskScore:      score,
			RiskLevel:      level,
		}
		ranked = append(ranked, b)

		risk.RiskLevelCounts[level]++
		totalScore += score
		totalViolations += violations
		if level == models.RiskHigh && b.Borough != "" {
			risk.ByBorough[b.Borough]++
		}
	}

	risk.TotalBuildings = len(ranked)
	if risk.TotalBuildings > 0 {
		risk.AverageScore = totalScore / float64(risk.TotalBuildings)
		risk.AverageViolations = float64(totalViolations) / float64(risk.TotalBuildings)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RiskScore > ranked[j].RiskScore
	})
	if len(ranked) > topRiskCount {
		ranked = ranked[:topRiskCount]
	}
	risk.TopRisks = ranked

	result.Risk = risk
}
