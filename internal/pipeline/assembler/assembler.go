// internal/pipeline/assembler/assembler.go
package assembler

import (
	"fmt"
	"time"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/dataaccess"
	"nycdb-insight/internal/pipeline/interpreter"
	"nycdb-insight/internal/pipeline/narrative"
)

// rawSampleCap bounds the raw rows echoed back in the envelope.
const rawSampleCap = 10

// Assembler folds every stage output into the final ResponseEnvelope. It is
// pure: committing the turn to the conversation store is the caller's job.
type Assembler struct {
	logger logger.Logger
	clock  func() time.Time
}

func New(log logger.Logger) *Assembler {
	return &Assembler{
		logger: log.WithFields(map[string]interface{}{"stage": "assembler"}),
		clock:  time.Now,
	}
}

// WithClock fixes the envelope timestamp. Tests use it.
func (a *Assembler) WithClock(clock func() time.Time) *Assembler {
	a.clock = clock
	return a
}

// Assemble builds the envelope. Confidence is the narrative confidence; a
// fallback narrative zeroes it.
func (a *Assembler) Assemble(
	sessionID string,
	q models.StructuredQuery,
	rs *dataaccess.ResultSet,
	analysis *models.AnalysisResult,
	report models.PatternReport,
	nar narrative.Narrative,
	recs narrative.Recommendations,
) models.ResponseEnvelope {
	envelope := models.ResponseEnvelope{
		NarrativeText:   nar.Text,
		KeyFindings:     nar.KeyFindings,
		Explanations:    nar.Explanation,
		Recommendations: recs.Items,
		Visualizations:  a.charts(q.Intent, analysis),
		RawDataSample:   sampleRows(rs),
		SessionID:       sessionID,
		Timestamp:       a.clock(),
		ConfidenceScore: nar.Confidence,
	}

	envelope.RefinementSuggestions = a.suggestions(q, rs, envelope.Visualizations)

	a.logger.Debug("response assembled", map[string]interface{}{
		"intent":      string(q.Intent),
		"charts":      len(envelope.Visualizations),
		"findings":    len(envelope.KeyFindings),
		"suggestions": len(envelope.RefinementSuggestions),
	})

	return envelope
}

func sampleRows(rs *dataaccess.ResultSet) []map[string]interface{} {
	if rs == nil || len(rs.Rows) == 0 {
		return []map[string]interface{}{}
	}
	n := len(rs.Rows)
	if n > rawSampleCap {
		n = rawSampleCap
	}
	return rs.Rows[:n]
}

// charts picks visualizations per intent, skipping any chart whose backing
// data is absent or empty.
func (a *Assembler) charts(intent models.Intent, analysis *models.AnalysisResult) []models.ChartConfig {
	charts := []models.ChartConfig{}
	if analysis == nil {
		return charts
	}

	switch intent {
	case models.IntentRiskAssessment:
		if risk := analysis.Risk; risk != nil {
			if len(risk.RiskLevelCounts) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "pie",
					Title: "Risk Level Distribution",
					Data:  risk.RiskLevelCounts,
				})
			}
			if len(risk.ByBorough) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "bar",
					Title: "High-Risk Buildings by Borough",
					Data:  risk.ByBorough,
				})
			}
			if len(risk.TopRisks) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "table",
					Title: "Highest Risk Buildings",
					Data:  risk.TopRisks,
				})
			}
		}

	case models.IntentTrendAnalysis:
		if trend := analysis.Trend; trend != nil && len(trend.Series) > 0 {
			charts = append(charts, models.ChartConfig{
				Type:  "line",
				Title: "Activity Over Time",
				Data:  trend.Series,
			})
		}

	case models.IntentViolationSearch:
		if v := analysis.Violation; v != nil {
			if len(v.ByType) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "pie",
					Title: "Violations by Type",
					Data:  v.ByType,
				})
			}
			if len(v.ByStatus) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "bar",
					Title: "Violations by Status",
					Data:  v.ByStatus,
				})
			}
			if len(v.TopBuildings) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "table",
					Title: "Buildings With Most Violations",
					Data:  v.TopBuildings,
				})
			}
		}

	case models.IntentBuildingLookup, models.IntentGeneralStats:
		if b := analysis.Building; b != nil {
			if len(b.ByBorough) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "bar",
					Title: "Buildings by Borough",
					Data:  b.ByBorough,
				})
			}
			if len(b.ByClass) > 0 {
				charts = append(charts, models.ChartConfig{
					Type:  "pie",
					Title: "Buildings by Class",
					Data:  b.ByClass,
				})
			}
		}

	case models.IntentComparison:
		if c := analysis.Comparison; c != nil && len(c.Groups) > 0 {
			charts = append(charts, models.ChartConfig{
				Type:  "bar",
				Title: "Comparison by Group",
				Data:  c.Groups,
			})
		}
	}

	return charts
}

// suggestions proposes refinements the user can ask next.
func (a *Assembler) suggestions(q models.StructuredQuery, rs *dataaccess.ResultSet, charts []models.ChartConfig) []string {
	out := []string{"Tell me more about these results"}

	if len(charts) == 0 {
		out = append(out, "Try asking for a visualization of this data")
	}
	if rs != nil && rs.RowCount > rawSampleCap {
		out = append(out, "Ask for only the top results")
	}

	switch q.Intent {
	case models.IntentRiskAssessment:
		out = append(out, "Ask which violations drive the highest risk scores")
	case models.IntentTrendAnalysis:
		out = append(out, "Ask how this trend compares to the previous period")
	case models.IntentViolationSearch:
		out = append(out, "Ask which buildings have the most open violations")
	case models.IntentComparison:
		out = append(out, "Ask what explains the gap between groups")
	}

	if loc, ok := q.Entities.First(models.EntityLocation); ok && loc.Recognized {
		for _, borough := range interpreter.Boroughs {
			if borough != loc.Normalized {
				out = append(out, fmt.Sprintf("Ask the same question about %s", borough))
				break
			}
		}
	}

	return out
}
