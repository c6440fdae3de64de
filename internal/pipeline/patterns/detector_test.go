// internal/pipeline/patterns/detector_test.go
package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
)

func newTestDetector() *Detector {
	return New(logger.NewNoOpLogger())
}

func TestDetectGeoConcentration(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Intent: models.IntentRiskAssessment,
		Risk: &models.RiskStats{
			AverageScore: 60,
			ByBorough:    map[string]int{"Brooklyn": 5, "Queens": 2, "Bronx": 1},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)

	require.NotEmpty(t, report.SignificantPatterns)
	finding := report.SignificantPatterns[0]
	assert.Equal(t, "geographic_concentration", finding.Kind)
	assert.Equal(t, models.ImportanceHigh, finding.Importance)
	assert.Equal(t, "Brooklyn", finding.SupportingData["borough"])
	assert.Equal(t, 40.0, finding.SupportingData["thresholdPct"])
	assert.InDelta(t, 62.5, finding.SupportingData["sharePct"].(float64), 0.01)
}

func TestDetectGeoConcentrationBelowThreshold(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Risk: &models.RiskStats{
			ByBorough: map[string]int{"Brooklyn": 1, "Queens": 1, "Bronx": 1},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)
	assert.Empty(t, report.SignificantPatterns)
}

func TestDetectRiskClusters(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Risk: &models.RiskStats{
			ByBorough: map[string]int{"Brooklyn": 3, "Queens": 2},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, "risk_cluster", report.Clusters[0].Kind)
	assert.Equal(t, "Brooklyn", report.Clusters[0].SupportingData["borough"])
}

func TestDetectViolationAnomalies(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Risk: &models.RiskStats{
			AverageViolations: 10,
			TopRisks: []models.RankedBuilding{
				{BuildingID: "1", RiskScore: 90, ViolationCount: 30},
				{BuildingID: "2", RiskScore: 45, ViolationCount: 15},
			},
		},
	}

	report := d.Detect(models.StructuredQuery{Intent: models.IntentRiskAssessment}, analysis)

	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "violation_anomaly", report.Anomalies[0].Kind)
	assert.Equal(t, "1", report.Anomalies[0].SupportingData["buildingId"])
	assert.Equal(t, 30, report.Anomalies[0].SupportingData["violationCount"])
}

// Exactly twice the average is not an anomaly; the factor is strict.
func TestDetectViolationAnomalyBoundary(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Risk: &models.RiskStats{
			AverageViolations: 10,
			TopRisks: []models.RankedBuilding{
				{BuildingID: "1", ViolationCount: 20},
			},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)
	assert.Empty(t, report.Anomalies)
}

func TestDetectDominantViolationType(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Violation: &models.ViolationStats{
			TotalViolations: 10,
			ByType:          map[string]int{"HEAT": 4, "PLUMBING": 3, "PAINT": 3},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)

	require.Len(t, report.SignificantPatterns, 1)
	assert.Equal(t, "dominant_violation_type", report.SignificantPatterns[0].Kind)
	assert.Equal(t, "HEAT", report.SignificantPatterns[0].SupportingData["violationType"])
}

func TestDetectTrendShiftsAndSeasonality(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Trend: &models.TrendStats{
			Deltas: []models.PeriodDelta{
				{From: "2025-01", To: "2025-02", PercentChange: 5, Significant: false},
				{From: "2025-02", To: "2025-03", PercentChange: -35, Significant: true},
			},
			SeasonalityOK:  true,
			PeriodsCovered: 24,
			Seasonality: []models.SeasonalSignal{
				{Month: 1, AverageValue: 200, DeviationPct: 45},
				{Month: 7, AverageValue: 80, DeviationPct: -22},
			},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)

	require.Len(t, report.SignificantPatterns, 1)
	assert.Contains(t, report.SignificantPatterns[0].Description, "fell 35%")

	require.NotNil(t, report.Seasonality)
	assert.Equal(t, 1, report.Seasonality.SupportingData["month"])
}

func TestDetectComparisonOutliers(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Comparison: &models.ComparisonStats{
			Groups: []models.GroupSummary{
				{Group: "Bronx", AverageValue: 9},
				{Group: "Queens", AverageValue: 2},
				{Group: "Manhattan", AverageValue: 1},
			},
		},
	}

	report := d.Detect(models.StructuredQuery{}, analysis)

	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "group_outlier", report.Anomalies[0].Kind)
	assert.Equal(t, "Bronx", report.Anomalies[0].SupportingData["group"])
}

// The detector is deterministic: repeated runs over the same analysis yield
// identical reports, including ordering.
func TestDetectDeterministic(t *testing.T) {
	d := newTestDetector()

	analysis := &models.AnalysisResult{
		Risk: &models.RiskStats{
			AverageScore:      30,
			AverageViolations: 4,
			ByBorough:         map[string]int{"Brooklyn": 5, "Queens": 4, "Bronx": 3, "Manhattan": 3},
			TopRisks: []models.RankedBuilding{
				{BuildingID: "1", RiskScore: 95, ViolationCount: 12},
			},
		},
	}

	q := models.StructuredQuery{Intent: models.IntentRiskAssessment}
	first := d.Detect(q, analysis)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Detect(q, analysis))
	}
}

func TestDetectNilAndEmptyAnalysis(t *testing.T) {
	d := newTestDetector()

	assert.Empty(t, d.Detect(models.StructuredQuery{}, nil).All())
	assert.Empty(t, d.Detect(models.StructuredQuery{}, &models.AnalysisResult{}).All())
}
