// internal/pipeline/analyzer/analyzer.go
package analyzer

import (
	"math"
	"sort"
	"strconv"
	"time"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/dataaccess"
)

// Analyzer computes deterministic statistics over a result set. No completion
// calls happen here; everything downstream of the narrative stage can treat
// these numbers as ground truth.
type Analyzer struct {
	logger logger.Logger
	clock  func() time.Time
}

func New(log logger.Logger) *Analyzer {
	return &Analyzer{
		logger: log.WithFields(map[string]interface{}{"stage": "analyzer"}),
		clock:  time.Now,
	}
}

// WithClock fixes the year used for building age computation. Tests use it.
func (a *Analyzer) WithClock(clock func() time.Time) *Analyzer {
	a.clock = clock
	return a
}

type analyzeFunc func(*Analyzer, *dataaccess.ResultSet, *models.AnalysisResult)

var routines = map[models.Intent]analyzeFunc{
	models.IntentRiskAssessment:  (*Analyzer).analyzeRisk,
	models.IntentTrendAnalysis:   (*Analyzer).analyzeTrend,
	models.IntentViolationSearch: (*Analyzer).analyzeViolations,
	models.IntentBuildingLookup:  (*Analyzer).analyzeBuildings,
	models.IntentComparison:      (*Analyzer).analyzeComparison,
	models.IntentGeneralStats:    (*Analyzer).analyzeBuildings,
}

// Analyze dispatches on intent. Unknown intents and empty row sets still
// produce a result with basic stats so the response shape never degrades.
func (a *Analyzer) Analyze(intent models.Intent, rs *dataaccess.ResultSet) *models.AnalysisResult {
	result := &models.AnalysisResult{
		Intent:     intent,
		BasicStats: a.basicStats(rs),
	}

	if rs.RowCount == 0 {
		return result
	}

	if routine, ok := routines[intent]; ok {
		routine(a, rs, result)
	}

	a.logger.Debug("analysis computed", map[string]interface{}{
		"intent":   string(intent),
		"rowCount": rs.RowCount,
	})

	return result
}

// basicStats summarizes every numeric field across all rows.
func (a *Analyzer) basicStats(rs *dataaccess.ResultSet) models.BasicStats {
	stats := models.BasicStats{
		RecordCount:   rs.RowCount,
		NumericFields: map[string]models.NumericSummary{},
	}
	if rs.RowCount == 0 {
		return stats
	}

	seen := map[string]bool{}
	for _, row := range rs.Rows {
		for field := range row {
			if !seen[field] {
				seen[field] = true
				stats.Fields = append(stats.Fields, field)
			}
		}
	}
	sort.Strings(stats.Fields)

	for _, field := range stats.Fields {
		var values []float64
		for _, row := range rs.Rows {
			if v, ok := toFloat(row[field]); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		stats.NumericFields[field] = summarize(values)
	}

	return stats
}

// summarize computes the five-number summary plus a two-pass population
// standard deviation.
func summarize(values []float64) models.NumericSummary {
	s := models.NumericSummary{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}
	for _, v := range values {
		s.Sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = s.Sum / float64(s.Count)

	var sq float64
	for _, v := range values {
		d := v - s.Avg
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(s.Count))

	return s
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
