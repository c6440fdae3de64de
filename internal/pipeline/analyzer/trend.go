// internal/pipeline/analyzer/trend.go
package analyzer

import (
	"sort"
	"strconv"
	"strings"

	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/dataaccess"
)

const (
	significantChangePct  = 20.0
	seasonalityMinPeriods = 24
)

func (a *Analyzer) analyzeTrend(rs *dataaccess.ResultSet, result *models.AnalysisResult) {
	trend := &models.TrendStats{}

	for _, row := range rs.Rows {
		period := toString(row["period"])
		value, ok := toFloat(row["value"])
		if period == "" || !ok {
			continue
		}
		trend.Series = append(trend.Series, models.TrendPoint{Period: period, Value: value})
	}

	// Period labels are YYYY-MM, so lexicographic order is chronological.
	sort.Slice(trend.Series, func(i, j int) bool {
		return trend.Series[i].Period < trend.Series[j].Period
	})
	trend.PeriodsCovered = len(trend.Series)

	if len(trend.Series) >= 2 {
		first := trend.Series[0].Value
		last := trend.Series[len(trend.Series)-1].Value
		trend.OverallChange = percentChange(first, last)
	}

	for i := 1; i < len(trend.Series); i++ {
		prev := trend.Series[i-1]
		cur := trend.Series[i]
		pct := percentChange(prev.Value, cur.Value)
		trend.Deltas = append(trend.Deltas, models.PeriodDelta{
			From:          prev.Period,
			To:            cur.Period,
			Change:        cur.Value - prev.Value,
			PercentChange: pct,
			Significant:   abs(pct) >= significantChangePct,
		})
	}

	// Seasonality needs at least two full years of periods to mean anything.
	if trend.PeriodsCovered >= seasonalityMinPeriods {
		trend.Seasonality = seasonalSignals(trend.Series)
		trend.SeasonalityOK = true
	}

	result.Trend = trend
}

// seasonalSignals reports calendar months whose average deviates from the
// global average by the significance threshold.
func seasonalSignals(series []models.TrendPoint) []models.SeasonalSignal {
	monthSums := map[int]float64{}
	monthCounts := map[int]int{}
	var globalSum float64

	for _, p := range series {
		month := periodMonth(p.Period)
		if month == 0 {
			continue
		}
		monthSums[month] += p.Value
		monthCounts[month]++
		globalSum += p.Value
	}
	if len(series) == 0 {
		return nil
	}

	globalAvg := globalSum / float64(len(series))
	if globalAvg == 0 {
		return nil
	}

	var signals []models.SeasonalSignal
	for month := 1; month <= 12; month++ {
		count := monthCounts[month]
		if count == 0 {
			continue
		}
		avg := monthSums[month] / float64(count)
		dev := (avg - globalAvg) / globalAvg * 100
		if abs(dev) >= significantChangePct {
			signals = append(signals, models.SeasonalSignal{
				Month:        month,
				AverageValue: avg,
				DeviationPct: dev,
			})
		}
	}
	return signals
}

// periodMonth parses the MM out of a YYYY-MM label, returning 0 when malformed.
func periodMonth(period string) int {
	parts := strings.SplitN(period, "-", 2)
	if len(parts) != 2 {
		return 0
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0
	}
	return month
}

// percentChange handles a zero baseline without dividing by it: any growth
// from zero reads as 100%, no change reads as 0%.
func percentChange(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		return 100
	}
	return (to - from) / from * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
