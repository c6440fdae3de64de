// internal/models/intent.go
package models

import "strings"

// Intent is the closed-set classification of a user question.
type Intent string

const (
	IntentRiskAssessment  Intent = "risk_assessment"
	IntentTrendAnalysis   Intent = "trend_analysis"
	IntentViolationSearch Intent = "violation_search"
	IntentBuildingLookup  Intent = "building_lookup"
	IntentComparison      Intent = "comparison"
	IntentGeneralStats    Intent = "general_stats"
	IntentUnknown         Intent = "unknown"
)

// KnownIntents lists every intent the pipeline dispatches on, in a fixed order.
var KnownIntents = []Intent{
	IntentRiskAssessment,
	IntentTrendAnalysis,
	IntentViolationSearch,
	IntentBuildingLookup,
	IntentComparison,
	IntentGeneralStats,
}

// ParseIntent maps free text onto the closed set, tolerating the casing and
// whitespace drift typical of completion replies. Anything outside the set
// becomes IntentUnknown so callers are forced through the clarification path.
func ParseIntent(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range KnownIntents {
		if string(in) == s {
			return in
		}
	}
	return IntentUnknown
}

// IsKnown reports whether the intent is a member of the closed set. Values
// constructed outside ParseIntent are not trusted.
func (i Intent) IsKnown() bool {
	for _, in := range KnownIntents {
		if i == in {
			return true
		}
	}
	return false
}
