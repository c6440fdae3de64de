// internal/models/analysis.go
package models

// RiskLevel buckets a computed risk score.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "High"
	RiskMedium  RiskLevel = "Medium"
	RiskLow     RiskLevel = "Low"
	RiskMinimal RiskLevel = "Minimal"
)

// NumericSummary is the generic per-field summary computed for every intent.
type NumericSummary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// BasicStats is always present regardless of intent, even on empty row sets.
type BasicStats struct {
	RecordCount   int                       `json:"recordCount"`
	Fields        []string                  `json:"fields"`
	NumericFields map[string]NumericSummary `json:"numericFields"`
}

// RankedBuilding is one entry in a risk- or violation-ordered ranking.
type RankedBuilding struct {
	BuildingID     string    `json:"buildingId"`
	Address        string    `json:"address,omitempty"`
	Borough        string    `json:"borough,omitempty"`
	Age            int       `json:"age,omitempty"`
	ViolationCount int       `json:"violationCount"`
	RiskScore      float64   `json:"riskScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
}

// RiskStats is the risk_assessment bundle.
type RiskStats struct {
	TotalBuildings    int               `json:"totalBuildings"`
	RiskLevelCounts   map[RiskLevel]int `json:"riskLevelCounts"`
	AverageScore      float64           `json:"averageScore"`
	AverageViolations float64           `json:"averageViolations"`
	TopRisks          []RankedBuilding  `json:"topRisks"`
	ByBorough         map[string]int    `json:"byBorough"`
}

// TrendPoint is one period in a time-ordered series.
type TrendPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// PeriodDelta is the change between two consecutive periods.
type PeriodDelta struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percentChange"`
	Significant   bool    `json:"significant"`
}

// SeasonalSignal reports a calendar month that deviates from the global average.
type SeasonalSignal struct {
	Month        int     `json:"month"`
	AverageValue float64 `json:"averageValue"`
	DeviationPct float64 `json:"deviationPct"`
}

// TrendStats is the trend_analysis bundle.
type TrendStats struct {
	Series         []TrendPoint     `json:"series"`
	OverallChange  float64          `json:"overallChange"`
	Deltas         []PeriodDelta    `json:"deltas"`
	Seasonality    []SeasonalSignal `json:"seasonality,omitempty"`
	SeasonalityOK  bool             `json:"seasonalityComputed"`
	PeriodsCovered int              `json:"periodsCovered"`
}

// ViolationStats is the violation_search bundle.
type ViolationStats struct {
	TotalViolations int              `json:"totalViolations"`
	ByType          map[string]int   `json:"byType"`
	ByStatus        map[string]int   `json:"byStatus"`
	BySource        map[string]int   `json:"bySource"`
	TopBuildings    []RankedBuilding `json:"topBuildings"`
}

// BuildingStats is the building_lookup bundle.
type BuildingStats struct {
	TotalBuildings int            `json:"totalBuildings"`
	ByBorough      map[string]int `json:"byBorough"`
	ByClass        map[string]int `json:"byClass"`
	AgeSummary     NumericSummary `json:"ageSummary"`
	UnitSummary    NumericSummary `json:"unitSummary"`
}

// GroupSummary is one side of a comparison.
type GroupSummary struct {
	Group          string  `json:"group"`
	RecordCount    int     `json:"recordCount"`
	ViolationCount int     `json:"violationCount"`
	AverageValue   float64 `json:"averageValue"`
}

// ComparisonStats is the comparison bundle.
type ComparisonStats struct {
	Groups []GroupSummary     `json:"groups"`
	Deltas map[string]float64 `json:"deltas,omitempty"`
}

// AnalysisResult carries the intent-specific bundle plus the generic stats.
// Exactly one of the intent bundles is populated, matching Intent.
type AnalysisResult struct {
	Intent     Intent           `json:"intent"`
	BasicStats BasicStats       `json:"basicStats"`
	Risk       *RiskStats       `json:"riskStats,omitempty"`
	Trend      *TrendStats      `json:"trendStats,omitempty"`
	Violation  *ViolationStats  `json:"violationStats,omitempty"`
	Building   *BuildingStats   `json:"buildingStats,omitempty"`
	Comparison *ComparisonStats `json:"comparisonStats,omitempty"`
}
