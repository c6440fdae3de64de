// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nycdb-insight/internal/common/config"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/genai"
	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline"
	"nycdb-insight/internal/pipeline/analyzer"
	"nycdb-insight/internal/pipeline/assembler"
	"nycdb-insight/internal/pipeline/compiler"
	"nycdb-insight/internal/pipeline/conversation"
	"nycdb-insight/internal/pipeline/dataaccess"
	"nycdb-insight/internal/pipeline/interpreter"
	"nycdb-insight/internal/pipeline/narrative"
	"nycdb-insight/internal/pipeline/patterns"
	"nycdb-insight/internal/server"
	"nycdb-insight/pkg/registry"
)

const e2eRegistry = `{
	"version": "e2e",
	"datasets": [
		{
			"name": "buildings",
			"keyColumn": "bbl",
			"columns": [
				{"name": "address", "type": "text"},
				{"name": "borough", "type": "text"},
				{"name": "year_built", "type": "integer"},
				{"name": "floor_count", "type": "integer"},
				{"name": "unit_count", "type": "integer"},
				{"name": "building_class", "type": "text"}
			]
		},
		{
			"name": "hpd_violations",
			"keyColumn": "bbl",
			"dateColumn": "issue_date",
			"columns": [
				{"name": "issue_date", "type": "date"},
				{"name": "status", "type": "text"},
				{"name": "violation_type", "type": "text"},
				{"name": "source", "type": "text"}
			]
		},
		{
			"name": "dob_violations",
			"keyColumn": "bbl",
			"dateColumn": "issue_date",
			"columns": [
				{"name": "issue_date", "type": "date"},
				{"name": "status", "type": "text"},
				{"name": "violation_type", "type": "text"},
				{"name": "source", "type": "text"}
			]
		},
		{
			"name": "dob_permits",
			"keyColumn": "bbl",
			"dateColumn": "issue_date",
			"columns": [
				{"name": "issue_date", "type": "date"},
				{"name": "permit_type", "type": "text"},
				{"name": "borough", "type": "text"},
				{"name": "building_class", "type": "text"}
			]
		}
	]
}`

// completionScript fakes the hosted completion endpoint. It keys replies off
// prompt content: classification prompts get JSON, prose prompts get text.
func completionScript(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var text string
		switch {
		case strings.Contains(req.Prompt, "Classify the intent"):
			// The prompt embeds earlier turns, so match the final question only.
			question := req.Prompt[strings.LastIndex(req.Prompt, "Question:"):]
			switch {
			case strings.Contains(question, "dangerous buildings in Brooklyn"):
				text = `{"intent": "risk_assessment", "entities": {"location": ["Brooklyn"]}}`
			case strings.Contains(question, "what about Queens"):
				text = `{"intent": "unknown", "entities": {"location": ["Queens"]}}`
			case strings.Contains(question, "igloos in Antarctica"):
				text = `{"intent": "building_lookup", "entities": {"location": ["Antarctica"]}}`
			default:
				text = `{"intent": "building_lookup"}`
			}
		case strings.Contains(req.Prompt, "summaries"):
			text = "The data shows a clear picture.\n\nKey findings:\n- One building stands out"
		default:
			text = "- Inspect the highest-risk building"
		}

		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
}

type env struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	completion := completionScript(t)
	t.Cleanup(completion.Close)

	reg, err := registry.ParseRegistry([]byte(e2eRegistry))
	require.NoError(t, err)

	log := logger.NewNoOpLogger()

	completer := genai.NewClient(&genai.Config{
		BaseURL:    completion.URL,
		Model:      "e2e-model",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}, log)

	svc := pipeline.NewService(pipeline.Deps{
		Interpreter: interpreter.New(completer, log),
		Compiler:    compiler.New(reg, log),
		Executor:    dataaccess.NewExecutor(db, redisClient, dataaccess.Options{CacheTTL: time.Minute}, log),
		Analyzer:    analyzer.New(log),
		Detector:    patterns.New(log),
		Narrator:    narrative.New(completer, 4000, log),
		Assembler:   assembler.New(log),
		Store: conversation.NewRedisStore(redisClient, conversation.Options{
			SessionTTL: 30 * time.Minute,
		}, log),
	}, log)

	srv := server.New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, svc, nil, log)
	return &env{handler: srv.Handler(), mock: mock}
}

func (e *env) post(t *testing.T, body string) (*httptest.ResponseRecorder, models.ResponseEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ai/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp struct {
		Response models.ResponseEnvelope `json:"response"`
	}
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp.Response
}

func TestRiskAssessmentScenario(t *testing.T) {
	e := newEnv(t)

	rows := sqlmock.NewRows([]string{"bbl", "address", "borough", "year_built", "building_class", "unit_count", "violation_count"})
	for i := 0; i < 12; i++ {
		rows.AddRow(fmt.Sprintf("30000100%02d", i), fmt.Sprintf("%d Flatbush Ave", i), "Brooklyn", 1900+i*10, "R6", 24, 40-i*3)
	}
	e.mock.ExpectQuery("SELECT .+ FROM buildings LEFT JOIN hpd_violations .+ LEFT JOIN dob_violations").
		WithArgs("Brooklyn").
		WillReturnRows(rows)

	rec, env := e.post(t, `{"query": "show me the most dangerous buildings in Brooklyn", "userId": "inspector-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, env.NarrativeText, "clear picture")
	assert.NotEmpty(t, env.KeyFindings)
	assert.NotEmpty(t, env.Recommendations)
	assert.Equal(t, 0.85, env.ConfidenceScore)
	assert.NotEmpty(t, env.SessionID)

	// Three risk charts: level pie, borough bar, top-10 table.
	require.Len(t, env.Visualizations, 3)
	assert.Equal(t, "Risk Level Distribution", env.Visualizations[0].Title)

	// 12 result rows, sample capped at 10.
	assert.Len(t, env.RawDataSample, 10)
	assert.Contains(t, env.RefinementSuggestions, "Ask for only the top results")

	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestEmptyResultScenario(t *testing.T) {
	e := newEnv(t)

	// "Antarctica" is not a recognized borough, so no predicate is bound.
	e.mock.ExpectQuery("SELECT .+ FROM buildings").
		WillReturnRows(sqlmock.NewRows([]string{"bbl", "address", "borough"}))

	rec, env := e.post(t, `{"query": "igloos in Antarctica", "userId": "inspector-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Zero rows is an answer, not an error.
	assert.Empty(t, env.RawDataSample)
	assert.NotEmpty(t, env.NarrativeText)
	assert.NotEmpty(t, env.RefinementSuggestions)
}

func TestFollowUpScenario(t *testing.T) {
	e := newEnv(t)

	riskRows := sqlmock.NewRows([]string{"bbl", "address", "borough", "year_built", "building_class", "unit_count", "violation_count"}).
		AddRow("3000010001", "1 Flatbush Ave", "Brooklyn", 1910, "R6", 24, 30)
	e.mock.ExpectQuery("SELECT .+ FROM buildings LEFT JOIN hpd_violations").
		WithArgs("Brooklyn").
		WillReturnRows(riskRows)

	// The follow-up names Queens but no intent; risk_assessment carries over
	// from the session and the location is replaced, not inherited.
	queensRows := sqlmock.NewRows([]string{"bbl", "address", "borough", "year_built", "building_class", "unit_count", "violation_count"}).
		AddRow("4000010001", "1 Queens Blvd", "Queens", 1950, "R6", 12, 4)
	e.mock.ExpectQuery("SELECT .+ FROM buildings LEFT JOIN hpd_violations").
		WithArgs("Queens").
		WillReturnRows(queensRows)

	rec, first := e.post(t, `{"query": "show me the most dangerous buildings in Brooklyn", "userId": "inspector-2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, second := e.post(t, fmt.Sprintf(
		`{"query": "what about Queens", "userId": "inspector-2", "conversationId": "%s"}`, first.SessionID))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, first.SessionID, second.SessionID)
	require.Len(t, second.RawDataSample, 1)
	assert.Equal(t, "Queens", second.RawDataSample[0]["borough"])

	require.NoError(t, e.mock.ExpectationsWereMet())

	// The conversation surface shows both turns.
	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/ai/conversations/%s?userId=inspector-2", first.SessionID), nil)
	rec2 := httptest.NewRecorder()
	e.handler.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)

	var conv struct {
		Data models.ConversationSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &conv))
	assert.Len(t, conv.Data.History, 2)
}
