// internal/pipeline/patterns/detector.go
package patterns

import (
	"fmt"
	"sort"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
)

// Detection thresholds. Findings always quote the threshold that fired in
// their supporting data so they can be re-verified against the analysis.
const (
	geoConcentrationPct = 40.0
	dominantTypePct     = 30.0
	anomalyFactor       = 2.0
	clusterMinSize      = 3
)

// Detector derives threshold-triggered findings from an AnalysisResult. It is
// deterministic: the same analysis always yields the same report.
type Detector struct {
	logger logger.Logger
}

func New(log logger.Logger) *Detector {
	return &Detector{
		logger: log.WithFields(map[string]interface{}{"stage": "patterns"}),
	}
}

// Detect runs every rule that applies to the populated analysis bundles.
func (d *Detector) Detect(q models.StructuredQuery, analysis *models.AnalysisResult) models.PatternReport {
	var report models.PatternReport
	if analysis == nil {
		return report
	}

	if analysis.Risk != nil {
		d.detectGeoConcentration(analysis.Risk, &report)
		d.detectRiskClusters(analysis.Risk, &report)
		d.detectViolationAnomalies(analysis.Risk, &report)
	}
	if analysis.Violation != nil {
		d.detectDominantType(analysis.Violation, &report)
	}
	if analysis.Trend != nil {
		d.detectTrendFindings(analysis.Trend, &report)
	}
	if analysis.Comparison != nil {
		d.detectComparisonOutliers(analysis.Comparison, &report)
	}

	d.logger.Debug("patterns detected", map[string]interface{}{
		"intent":   string(q.Intent),
		"findings": len(report.All()),
	})

	return report
}

// detectGeoConcentration fires when one borough holds more than the threshold
// share of all high-risk buildings.
func (d *Detector) detectGeoConcentration(risk *models.RiskStats, report *models.PatternReport) {
	totalHigh := 0
	for _, n := range risk.ByBorough {
		totalHigh += n
	}
	if totalHigh == 0 {
		return
	}

	for _, borough := range sortedKeys(risk.ByBorough) {
		count := risk.ByBorough[borough]
		share := float64(count) / float64(totalHigh) * 100
		if share > geoConcentrationPct {
			report.SignificantPatterns = append(report.SignificantPatterns, models.PatternFinding{
				Kind: "geographic_concentration",
				Description: fmt.Sprintf("%s holds %.0f%% of all high-risk buildings in this result",
					borough, share),
				Importance: models.ImportanceHigh,
				SupportingData: map[string]interface{}{
					"borough":      borough,
					"count":        count,
					"totalHigh":    totalHigh,
					"sharePct":     share,
					"thresholdPct": geoConcentrationPct,
				},
			})
		}
	}
}

// detectRiskClusters reports boroughs with at least clusterMinSize high-risk
// buildings.
func (d *Detector) detectRiskClusters(risk *models.RiskStats, report *models.PatternReport) {
	for _, borough := range sortedKeys(risk.ByBorough) {
		count := risk.ByBorough[borough]
		if count >= clusterMinSize {
			report.Clusters = append(report.Clusters, models.PatternFinding{
				Kind: "risk_cluster",
				Description: fmt.Sprintf("%d high-risk buildings cluster in %s",
					count, borough),
				Importance: models.ImportanceMedium,
				SupportingData: map[string]interface{}{
					"borough": borough,
					"count":   count,
					"minSize": clusterMinSize,
				},
			})
		}
	}
}

// detectViolationAnomalies flags ranked buildings whose violation count
// exceeds the group average by the anomaly factor.
func (d *Detector) detectViolationAnomalies(risk *models.RiskStats, report *models.PatternReport) {
	if risk.AverageViolations <= 0 {
		return
	}
	for _, b := range risk.TopRisks {
		if float64(b.ViolationCount) > risk.AverageViolations*anomalyFactor {
			report.Anomalies = append(report.Anomalies, models.PatternFinding{
				Kind: "violation_anomaly",
				Description: fmt.Sprintf("building %s has %d violations, more than twice the group average of %.1f",
					b.BuildingID, b.ViolationCount, risk.AverageViolations),
				Importance: models.ImportanceHigh,
				SupportingData: map[string]interface{}{
					"buildingId":        b.BuildingID,
					"violationCount":    b.ViolationCount,
					"averageViolations": risk.AverageViolations,
					"factor":            anomalyFactor,
				},
			})
		}
	}
}

// detectDominantType fires when a single violation type exceeds the threshold
// share of all violations.
func (d *Detector) detectDominantType(v *models.ViolationStats, report *models.PatternReport) {
	if v.TotalViolations == 0 {
		return
	}
	for _, vtype := range sortedKeys(v.ByType) {
		count := v.ByType[vtype]
		share := float64(count) / float64(v.TotalViolations) * 100
		if share > dominantTypePct {
			report.SignificantPatterns = append(report.SignificantPatterns, models.PatternFinding{
				Kind: "dominant_violation_type",
				Description: fmt.Sprintf("%s accounts for %.0f%% of violations in this result",
					vtype, share),
				Importance: models.ImportanceMedium,
				SupportingData: map[string]interface{}{
					"violationType": vtype,
					"count":         count,
					"total":         v.TotalViolations,
					"sharePct":      share,
					"thresholdPct":  dominantTypePct,
				},
			})
		}
	}
}

// detectTrendFindings lifts significant period deltas and seasonality out of
// the trend bundle.
func (d *Detector) detectTrendFindings(trend *models.TrendStats, report *models.PatternReport) {
	for _, delta := range trend.Deltas {
		if !delta.Significant {
			continue
		}
		direction := "rose"
		if delta.PercentChange < 0 {
			direction = "fell"
		}
		report.SignificantPatterns = append(report.SignificantPatterns, models.PatternFinding{
			Kind: "period_shift",
			Description: fmt.Sprintf("activity %s %.0f%% between %s and %s",
				direction, abs(delta.PercentChange), delta.From, delta.To),
			Importance: models.ImportanceMedium,
			SupportingData: map[string]interface{}{
				"from":          delta.From,
				"to":            delta.To,
				"percentChange": delta.PercentChange,
			},
		})
	}

	if trend.SeasonalityOK && len(trend.Seasonality) > 0 {
		top := trend.Seasonality[0]
		for _, s := range trend.Seasonality[1:] {
			if abs(s.DeviationPct) > abs(top.DeviationPct) {
				top = s
			}
		}
		report.Seasonality = &models.PatternFinding{
			Kind: "seasonality",
			Description: fmt.Sprintf("month %d deviates %.0f%% from the yearly average",
				top.Month, top.DeviationPct),
			Importance: models.ImportanceMedium,
			SupportingData: map[string]interface{}{
				"month":        top.Month,
				"deviationPct": top.DeviationPct,
				"periods":      trend.PeriodsCovered,
			},
		}
	}
}

// detectComparisonOutliers flags groups whose violation rate is at least the
// anomaly factor above the cross-group average.
func (d *Detector) detectComparisonOutliers(c *models.ComparisonStats, report *models.PatternReport) {
	if len(c.Groups) < 2 {
		return
	}
	var total float64
	for _, g := range c.Groups {
		total += g.AverageValue
	}
	avg := total / float64(len(c.Groups))
	if avg <= 0 {
		return
	}

	for _, g := range c.Groups {
		if g.AverageValue >= avg*anomalyFactor {
			report.Anomalies = append(report.Anomalies, models.PatternFinding{
				Kind: "group_outlier",
				Description: fmt.Sprintf("%s runs %.1f violations per building against a group average of %.1f",
					g.Group, g.AverageValue, avg),
				Importance: models.ImportanceHigh,
				SupportingData: map[string]interface{}{
					"group":        g.Group,
					"rate":         g.AverageValue,
					"groupAverage": avg,
					"factor":       anomalyFactor,
				},
			})
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
