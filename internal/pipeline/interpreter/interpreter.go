// internal/pipeline/interpreter/interpreter.go
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/genai"
	"nycdb-insight/internal/models"
)

// Interpreter turns free text plus conversation state into a StructuredQuery.
// Classification itself is delegated to the Completion Service; this stage
// only parses the reply defensively and normalizes entities.
type Interpreter struct {
	completer genai.Completer
	logger    logger.Logger
	clock     func() time.Time
}

func New(completer genai.Completer, log logger.Logger) *Interpreter {
	return &Interpreter{
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"stage": "interpreter"}),
		clock:     time.Now,
	}
}

// WithClock fixes the anchor used for relative time resolution. Tests use it.
func (i *Interpreter) WithClock(clock func() time.Time) *Interpreter {
	i.clock = clock
	return i
}

// Interpret is a pure function over its inputs plus the session snapshot; the
// caller commits the result into the session. It never fails hard: an
// unusable completion yields intent=unknown with the original text preserved.
func (i *Interpreter) Interpret(ctx context.Context, rawText string, session *models.ConversationSession) models.StructuredQuery {
	query := models.NewStructuredQuery(rawText)

	prompt := i.buildPrompt(rawText, session)
	reply, err := i.completer.Complete(ctx, genai.Request{
		Prompt:  prompt,
		Purpose: "interpret",
	})
	if err != nil {
		i.logger.Warn("completion failed, returning unknown intent", map[string]interface{}{
			"error": err.Error(),
		})
		return i.resolveFollowUp(query, session)
	}

	parsed, ok := extractPayload(reply)
	if !ok {
		i.logger.Warn("completion unparsable, returning unknown intent", map[string]interface{}{
			"replyLength": len(reply),
		})
		return i.resolveFollowUp(query, session)
	}

	query.Intent = models.ParseIntent(parsed.Intent)
	query.SortOrder = parsed.SortOrder
	if parsed.Limit > 0 {
		query.Limit = parsed.Limit
	}

	now := i.clock()
	for _, loc := range parsed.Entities.Locations {
		query.Entities[models.EntityLocation] = append(query.Entities[models.EntityLocation], NormalizeLocation(loc))
	}
	for _, bt := range parsed.Entities.BuildingTypes {
		query.Entities[models.EntityBuildingType] = append(query.Entities[models.EntityBuildingType], NormalizeBuildingType(bt))
	}
	for _, tp := range parsed.Entities.TimePeriods {
		query.Entities[models.EntityTimePeriod] = append(query.Entities[models.EntityTimePeriod], NormalizeTimePeriod(tp, now))
	}
	for _, vt := range parsed.Entities.ViolationTypes {
		query.Entities[models.EntityViolationType] = append(query.Entities[models.EntityViolationType], models.EntityValue{
			Raw:        vt,
			Normalized: strings.ToUpper(strings.TrimSpace(vt)),
			Recognized: true,
		})
	}

	query = i.resolveFollowUp(query, session)

	i.logger.Info("query interpreted", map[string]interface{}{
		"intent":      string(query.Intent),
		"entityKinds": len(query.Entities),
		"limit":       query.Limit,
	})

	return query
}

// completionPayload is the loose shape expected inside the completion text.
type completionPayload struct {
	Intent   string `json:"intent"`
	Entities struct {
		Locations      []string `json:"location"`
		BuildingTypes  []string `json:"building_type"`
		TimePeriods    []string `json:"time_period"`
		ViolationTypes []string `json:"violation_type"`
	} `json:"entities"`
	SortOrder string `json:"sortOrder"`
	Limit     int    `json:"limit"`
}

// extractPayload pulls the first balanced {...} substring out of the reply
// and decodes it. Completions wrap JSON in prose more often than not.
func extractPayload(reply string) (*completionPayload, bool) {
	start := strings.Index(reply, "{")
	if start < 0 {
		return nil, false
	}

	depth := 0
	for idx := start; idx < len(reply); idx++ {
		switch reply[idx] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var payload completionPayload
				if err := json.Unmarshal([]byte(reply[start:idx+1]), &payload); err != nil {
					return nil, false
				}
				return &payload, true
			}
		}
	}
	return nil, false
}

func (i *Interpreter) buildPrompt(rawText string, session *models.ConversationSession) string {
	var parts []string

	parts = append(parts, "You classify questions about NYC building and housing data.")
	parts = append(parts, fmt.Sprintf(
		"Classify the intent as one of: %s. Extract entities of kind location, building_type, time_period, violation_type.",
		intentList()))
	parts = append(parts, `Return a JSON object only:
{
  "intent": "...",
  "entities": {"location": [], "building_type": [], "time_period": [], "violation_type": []},
  "sortOrder": "",
  "limit": 0
}`)

	if session != nil {
		for _, turn := range session.RecentTurns(2) {
			parts = append(parts, fmt.Sprintf("Earlier question: %s (intent: %s)",
				turn.Query.OriginalQuery, turn.Query.Intent))
		}
	}

	parts = append(parts, fmt.Sprintf("\nQuestion: %s", rawText))

	return strings.Join(parts, "\n")
}

func intentList() string {
	names := make([]string, len(models.KnownIntents))
	for idx, in := range models.KnownIntents {
		names[idx] = string(in)
	}
	return strings.Join(names, ", ")
}

var pronounRe = regexp.MustCompile(`(?i)\b(these|those|it|this|that)\b`)

// resolveFollowUp copies intent, location, and building type forward from the
// previous turn when the new query is missing them or the text is referential.
// The copy is one-directional and never overwrites a populated field, which
// also makes it idempotent on fully-populated queries.
func (i *Interpreter) resolveFollowUp(query models.StructuredQuery, session *models.ConversationSession) models.StructuredQuery {
	if session == nil {
		return query
	}
	last, ok := session.LastTurn()
	if !ok {
		return query
	}

	referential := pronounRe.MatchString(query.OriginalQuery)

	missingIntent := !query.Intent.IsKnown()
	_, hasLocation := query.Entities.First(models.EntityLocation)
	_, hasBuildingType := query.Entities.First(models.EntityBuildingType)

	if !missingIntent && hasLocation && hasBuildingType && !referential {
		return query
	}

	prev := last.Query

	if missingIntent && prev.Intent.IsKnown() {
		query.Intent = prev.Intent
	}
	if !hasLocation {
		if vals := prev.Entities[models.EntityLocation]; len(vals) > 0 {
			query.Entities[models.EntityLocation] = append([]models.EntityValue(nil), vals...)
		}
	}
	if !hasBuildingType {
		if vals := prev.Entities[models.EntityBuildingType]; len(vals) > 0 {
			query.Entities[models.EntityBuildingType] = append([]models.EntityValue(nil), vals...)
		}
	}

	return query
}
