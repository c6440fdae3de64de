// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nycdb-insight/internal/common/config"
	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/pipeline"
)

// Pinger is anything the health endpoint can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface over the pipeline.
type Server struct {
	httpServer *http.Server
	pipeline   *pipeline.Service
	errors     *stderrors.ErrorHandler
	health     map[string]Pinger
	logger     logger.Logger
}

func New(cfg config.ServerConfig, svc *pipeline.Service, health map[string]Pinger, log logger.Logger) *Server {
	s := &Server{
		pipeline: svc,
		errors:   stderrors.NewErrorHandler(log),
		health:   health,
		logger:   log.WithFields(map[string]interface{}{"component": "server"}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ai/query", s.handleQuery)
	mux.HandleFunc("GET /api/ai/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/ai/conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the routed handler for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"durationMs": time.Since(start).Milliseconds(),
		})
	})
}
