// internal/pipeline/interpreter/interpreter_test.go
package interpreter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/genai"
	"nycdb-insight/internal/models"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(context.Context, genai.Request) (string, error) {
	return s.reply, s.err
}

var testNow = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func newTestInterpreter(reply string, err error) *Interpreter {
	i := New(&stubCompleter{reply: reply, err: err}, logger.NewNoOpLogger())
	return i.WithClock(func() time.Time { return testNow })
}

func TestInterpretFullClassification(t *testing.T) {
	i := newTestInterpreter(`Here is the classification:
{"intent": "risk_assessment", "entities": {"location": ["brooklyn"], "time_period": ["last year"]}, "limit": 25}`, nil)

	q := i.Interpret(context.Background(), "most dangerous buildings in brooklyn last year", nil)

	assert.Equal(t, models.IntentRiskAssessment, q.Intent)
	assert.Equal(t, 25, q.Limit)

	loc, ok := q.Entities.First(models.EntityLocation)
	require.True(t, ok)
	assert.Equal(t, "Brooklyn", loc.Normalized)
	assert.True(t, loc.Recognized)

	tp, ok := q.Entities.First(models.EntityTimePeriod)
	require.True(t, ok)
	require.NotNil(t, tp.TimeRange)
	assert.Equal(t, testNow.AddDate(-1, 0, 0), tp.TimeRange.Start)
}

func TestInterpretCompletionFailureYieldsUnknown(t *testing.T) {
	i := newTestInterpreter("", assert.AnError)

	q := i.Interpret(context.Background(), "anything", nil)

	assert.Equal(t, models.IntentUnknown, q.Intent)
	assert.Equal(t, "anything", q.OriginalQuery)
	assert.Equal(t, models.DefaultQueryLimit, q.Limit)
}

func TestInterpretUnparsableReplyYieldsUnknown(t *testing.T) {
	replies := []string{
		"no json here",
		"{broken",
		`{"intent": 42}`,
	}
	for _, reply := range replies {
		i := newTestInterpreter(reply, nil)
		q := i.Interpret(context.Background(), "question", nil)
		assert.Equal(t, models.IntentUnknown, q.Intent, "reply: %s", reply)
	}
}

func TestInterpretExtractsJSONFromProse(t *testing.T) {
	i := newTestInterpreter(`Sure! The classification is {"intent": "building_lookup"} as requested.`, nil)

	q := i.Interpret(context.Background(), "show buildings", nil)
	assert.Equal(t, models.IntentBuildingLookup, q.Intent)
}

func sessionWithTurn(intent models.Intent, borough string) *models.ConversationSession {
	prev := models.NewStructuredQuery("buildings in " + borough)
	prev.Intent = intent
	prev.Entities[models.EntityLocation] = []models.EntityValue{
		{Raw: borough, Normalized: borough, Recognized: true},
	}
	return &models.ConversationSession{
		ID:    "sess-1",
		Owner: "u1",
		History: []models.Turn{
			{Query: prev, ResponseSummary: "listed buildings"},
		},
	}
}

func TestInterpretFollowUpInheritsContext(t *testing.T) {
	i := newTestInterpreter(`{"intent": "unknown"}`, nil)
	session := sessionWithTurn(models.IntentBuildingLookup, "Queens")

	q := i.Interpret(context.Background(), "what about those", session)

	assert.Equal(t, models.IntentBuildingLookup, q.Intent)
	loc, ok := q.Entities.First(models.EntityLocation)
	require.True(t, ok)
	assert.Equal(t, "Queens", loc.Normalized)
}

func TestInterpretFollowUpNeverOverwrites(t *testing.T) {
	i := newTestInterpreter(`{"intent": "violation_search", "entities": {"location": ["Bronx"]}}`, nil)
	session := sessionWithTurn(models.IntentBuildingLookup, "Queens")

	q := i.Interpret(context.Background(), "open violations in the Bronx", session)

	assert.Equal(t, models.IntentViolationSearch, q.Intent)
	loc, _ := q.Entities.First(models.EntityLocation)
	assert.Equal(t, "Bronx", loc.Normalized)
}

// Resolving a fully-populated query is a no-op, so running it twice changes
// nothing.
func TestResolveFollowUpIdempotent(t *testing.T) {
	i := newTestInterpreter("", nil)
	session := sessionWithTurn(models.IntentBuildingLookup, "Queens")

	q := models.NewStructuredQuery("violations in the Bronx for these buildings")
	q.Intent = models.IntentViolationSearch
	q.Entities[models.EntityLocation] = []models.EntityValue{
		{Raw: "Bronx", Normalized: "Bronx", Recognized: true},
	}
	q.Entities[models.EntityBuildingType] = []models.EntityValue{
		{Raw: "residential", Normalized: "residential", Recognized: true},
	}

	once := i.resolveFollowUp(q.Clone(), session)
	twice := i.resolveFollowUp(once.Clone(), session)

	assert.Equal(t, once, twice)
	loc, _ := once.Entities.First(models.EntityLocation)
	assert.Equal(t, "Bronx", loc.Normalized)
}
