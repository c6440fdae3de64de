// internal/models/response.go
package models

import "time"

// FindingImportance grades a pattern finding.
type FindingImportance string

const (
	ImportanceLow    FindingImportance = "low"
	ImportanceMedium FindingImportance = "medium"
	ImportanceHigh   FindingImportance = "high"
)

// PatternFinding is one threshold-triggered observation. SupportingData always
// carries the literal threshold context so the finding can be re-verified
// against the AnalysisResult it came from.
type PatternFinding struct {
	Kind           string                 `json:"kind"`
	Description    string                 `json:"description"`
	Importance     FindingImportance      `json:"importance"`
	SupportingData map[string]interface{} `json:"supportingData"`
}

// PatternReport groups the detector's output by finding family.
type PatternReport struct {
	SignificantPatterns []PatternFinding `json:"significantPatterns"`
	Anomalies           []PatternFinding `json:"anomalies"`
	Clusters            []PatternFinding `json:"clusters"`
	Seasonality         *PatternFinding  `json:"seasonality,omitempty"`
}

// All flattens the report in a fixed order.
func (r PatternReport) All() []PatternFinding {
	out := make([]PatternFinding, 0,
		len(r.SignificantPatterns)+len(r.Anomalies)+len(r.Clusters)+1)
	out = append(out, r.SignificantPatterns...)
	out = append(out, r.Anomalies...)
	out = append(out, r.Clusters...)
	if r.Seasonality != nil {
		out = append(out, *r.Seasonality)
	}
	return out
}

// ChartConfig is one visualization the presentation layer can render directly.
type ChartConfig struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title"`
	Data   interface{}            `json:"data"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// ResponseEnvelope is the sole output of the pipeline.
//
// ConfidenceScore is a fixed placeholder when generation succeeds, not a
// calibrated metric; consumers must not rank answers by it.
type ResponseEnvelope struct {
	NarrativeText         string                   `json:"narrativeText"`
	KeyFindings           []string                 `json:"keyFindings"`
	Explanations          []string                 `json:"explanations"`
	Recommendations       []string                 `json:"recommendations"`
	Visualizations        []ChartConfig            `json:"visualizations"`
	RawDataSample         []map[string]interface{} `json:"rawDataSample"`
	RefinementSuggestions []string                 `json:"refinementSuggestions"`
	SessionID             string                   `json:"sessionId"`
	Timestamp             time.Time                `json:"timestamp"`
	ConfidenceScore       float64                  `json:"confidenceScore"`
}
