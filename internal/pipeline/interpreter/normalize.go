// internal/pipeline/interpreter/normalize.go
package interpreter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"nycdb-insight/internal/models"
)

// Boroughs is the canonical location vocabulary.
var Boroughs = []string{"Manhattan", "Brooklyn", "Queens", "Bronx", "Staten Island"}

// NormalizeLocation maps a free-text location onto a canonical borough by
// case-insensitive substring match. Unmatched strings pass through with
// Recognized=false so the compiler can decide whether to filter on them.
func NormalizeLocation(raw string) models.EntityValue {
	lowered := strings.ToLower(raw)
	for _, b := range Boroughs {
		if strings.Contains(lowered, strings.ToLower(b)) {
			return models.EntityValue{Raw: raw, Normalized: b, Recognized: true}
		}
	}
	return models.EntityValue{Raw: raw, Normalized: raw, Recognized: false}
}

var knownBuildingTypes = map[string]string{
	"residential": "residential",
	"commercial":  "commercial",
	"mixed":       "mixed use",
	"mixed use":   "mixed use",
	"industrial":  "industrial",
	"office":      "commercial",
	"apartment":   "residential",
}

// NormalizeBuildingType folds synonyms into the small vocabulary the compiler
// maps onto class-code prefixes.
func NormalizeBuildingType(raw string) models.EntityValue {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	for token, canonical := range knownBuildingTypes {
		if strings.Contains(lowered, token) {
			return models.EntityValue{Raw: raw, Normalized: canonical, Recognized: true}
		}
	}
	return models.EntityValue{Raw: raw, Normalized: raw, Recognized: false}
}

var (
	lastNYearsRe  = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+years?\b`)
	lastNMonthsRe = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+months?\b`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

func parseCount(s string) int {
	if n, ok := numberWords[strings.ToLower(s)]; ok {
		return n
	}
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}

// NormalizeTimePeriod resolves named relative phrases to absolute date ranges
// anchored on now. Unrecognized phrases pass through tagged unrecognized.
func NormalizeTimePeriod(raw string, now time.Time) models.EntityValue {
	lowered := strings.ToLower(strings.TrimSpace(raw))

	resolved := func(start, end time.Time) models.EntityValue {
		return models.EntityValue{
			Raw:        raw,
			Normalized: lowered,
			Recognized: true,
			TimeRange:  &models.TimeRange{Start: start, End: end},
		}
	}

	switch lowered {
	case "last year":
		return resolved(now.AddDate(-1, 0, 0), now)
	case "this year":
		return resolved(time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now)
	case "last month":
		return resolved(now.AddDate(0, -1, 0), now)
	case "last decade":
		return resolved(now.AddDate(-10, 0, 0), now)
	}

	if m := lastNYearsRe.FindStringSubmatch(lowered); m != nil {
		if n := parseCount(m[1]); n > 0 {
			return resolved(now.AddDate(-n, 0, 0), now)
		}
	}
	if m := lastNMonthsRe.FindStringSubmatch(lowered); m != nil {
		if n := parseCount(m[1]); n > 0 {
			return resolved(now.AddDate(0, -n, 0), now)
		}
	}

	return models.EntityValue{Raw: raw, Normalized: raw, Recognized: false}
}
