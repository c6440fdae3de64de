// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/common/metrics"
	"nycdb-insight/internal/common/observability"
	"nycdb-insight/internal/models"
	"nycdb-insight/internal/pipeline/analyzer"
	"nycdb-insight/internal/pipeline/assembler"
	"nycdb-insight/internal/pipeline/compiler"
	"nycdb-insight/internal/pipeline/conversation"
	"nycdb-insight/internal/pipeline/dataaccess"
	"nycdb-insight/internal/pipeline/interpreter"
	"nycdb-insight/internal/pipeline/narrative"
	"nycdb-insight/internal/pipeline/patterns"
)

// summaryLimit bounds the per-turn summary stored in conversation history.
const summaryLimit = 140

// Service wires the pipeline stages together. Stages up to data access fail
// the request; analysis onward degrades instead of failing.
type Service struct {
	interpreter *interpreter.Interpreter
	compiler    *compiler.Compiler
	executor    *dataaccess.Executor
	analyzer    *analyzer.Analyzer
	detector    *patterns.Detector
	narrator    *narrative.Narrator
	assembler   *assembler.Assembler
	store       conversation.Store
	obs         *observability.Observability
	logger      logger.Logger
}

// Deps carries the constructed stages into the service.
type Deps struct {
	Interpreter *interpreter.Interpreter
	Compiler    *compiler.Compiler
	Executor    *dataaccess.Executor
	Analyzer    *analyzer.Analyzer
	Detector    *patterns.Detector
	Narrator    *narrative.Narrator
	Assembler   *assembler.Assembler
	Store       conversation.Store

	// Observability is optional; a nil value disables the otel metrics.
	Observability *observability.Observability
}

func NewService(deps Deps, log logger.Logger) *Service {
	return &Service{
		interpreter: deps.Interpreter,
		compiler:    deps.Compiler,
		executor:    deps.Executor,
		analyzer:    deps.Analyzer,
		detector:    deps.Detector,
		narrator:    deps.Narrator,
		assembler:   deps.Assembler,
		store:       deps.Store,
		obs:         deps.Observability,
		logger:      log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Ask runs one question end to end and commits the turn to the conversation.
func (s *Service) Ask(ctx context.Context, owner, sessionID, text string) (models.ResponseEnvelope, error) {
	askStart := time.Now()

	session, err := s.store.GetOrCreate(ctx, owner, sessionID)
	if err != nil {
		return models.ResponseEnvelope{}, err
	}

	query := s.timedInterpret(ctx, text, session)

	if !query.Intent.IsKnown() {
		envelope := s.clarificationEnvelope(session.ID)
		if err := s.store.Record(ctx, session, query, "clarification requested"); err != nil {
			s.logger.Warn("failed to record clarification turn", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return envelope, nil
	}

	compiled, err := s.timedCompile(query)
	if err != nil {
		s.countFailure(ctx, query.Intent, err)
		return models.ResponseEnvelope{}, err
	}

	rs, err := s.timedExecute(ctx, compiled)
	if err != nil {
		s.countFailure(ctx, query.Intent, err)
		return models.ResponseEnvelope{}, err
	}

	analysis := s.timedAnalyze(query.Intent, rs)
	report := s.timedDetect(query, analysis)

	// Narrative and recommendations are independent completions; run them
	// concurrently.
	var (
		wg   sync.WaitGroup
		nar  narrative.Narrative
		recs narrative.Recommendations
	)
	genStart := time.Now()
	wg.Add(2)
	go func() {
		defer wg.Done()
		nar = s.narrator.Narrate(ctx, query, analysis, report)
	}()
	go func() {
		defer wg.Done()
		recs = s.narrator.Recommend(ctx, query, analysis, report)
	}()
	wg.Wait()
	metrics.StageDuration.WithLabelValues("narrative").Observe(time.Since(genStart).Seconds())

	envelope := s.assembler.Assemble(session.ID, query, rs, analysis, report, nar, recs)

	if err := s.store.Record(ctx, session, query, summarize(nar.Text)); err != nil {
		// A lost turn degrades follow-ups but not this answer.
		s.logger.Warn("failed to record turn", map[string]interface{}{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}

	metrics.QueriesProcessed.WithLabelValues(string(query.Intent)).Inc()
	if s.obs != nil {
		s.obs.RecordQueryProcessed(ctx, string(query.Intent), "ok")
		s.obs.RecordQueryDuration(ctx, time.Since(askStart), "ok")
	}

	s.logger.Info("query answered", map[string]interface{}{
		"intent":    string(query.Intent),
		"sessionId": session.ID,
		"rowCount":  rs.RowCount,
		"cached":    rs.Cached,
	})

	return envelope, nil
}

// Sessions lists an owner's conversation summaries, newest first.
func (s *Service) Sessions(ctx context.Context, owner string) ([]models.ConversationSummary, error) {
	sessions, err := s.store.ListForOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Summary())
	}
	return out, nil
}

// Session fetches one conversation by id.
func (s *Service) Session(ctx context.Context, owner, sessionID string) (*models.ConversationSession, error) {
	sess, err := s.store.Get(ctx, owner, sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			return nil, stderrors.NewSessionNotFoundError(sessionID)
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) clarificationEnvelope(sessionID string) models.ResponseEnvelope {
	return models.ResponseEnvelope{
		NarrativeText: "I couldn't work out what you're asking about NYC building data. " +
			"Could you rephrase the question?",
		KeyFindings:     []string{},
		Explanations:    []string{},
		Recommendations: []string{},
		Visualizations:  []models.ChartConfig{},
		RawDataSample:   []map[string]interface{}{},
		RefinementSuggestions: []string{
			"Show me the most dangerous buildings in Brooklyn",
			"How have construction permits changed over the last 5 years?",
			"Compare violations between Queens and the Bronx",
		},
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (s *Service) countFailure(ctx context.Context, intent models.Intent, err error) {
	code := "UNKNOWN"
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		code = string(stdErr.Code)
	}
	metrics.QueriesFailed.WithLabelValues(string(intent), code).Inc()
	if s.obs != nil {
		s.obs.RecordQueryProcessed(ctx, string(intent), "error")
	}
}

// summarize truncates to the history budget without splitting a rune.
func summarize(text string) string {
	if len(text) <= summaryLimit {
		return text
	}
	cut := summaryLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (s *Service) timedInterpret(ctx context.Context, text string, session *models.ConversationSession) models.StructuredQuery {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("interpret").Observe(time.Since(start).Seconds())
	}()
	return s.interpreter.Interpret(ctx, text, session)
}

func (s *Service) timedCompile(q models.StructuredQuery) (*compiler.CompiledQuery, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("compile").Observe(time.Since(start).Seconds())
	}()
	return s.compiler.Compile(q)
}

func (s *Service) timedExecute(ctx context.Context, cq *compiler.CompiledQuery) (*dataaccess.ResultSet, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("execute").Observe(time.Since(start).Seconds())
	}()
	return s.executor.Execute(ctx, cq)
}

func (s *Service) timedAnalyze(intent models.Intent, rs *dataaccess.ResultSet) *models.AnalysisResult {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	}()
	return s.analyzer.Analyze(intent, rs)
}

func (s *Service) timedDetect(q models.StructuredQuery, analysis *models.AnalysisResult) models.PatternReport {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	}()
	return s.detector.Detect(q, analysis)
}
