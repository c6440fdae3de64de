// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/validation"
)

// maxRequestBody caps query request bodies well above the schema's 2000-char
// query limit.
const maxRequestBody = 64 * 1024

type queryRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// queryResponse is the query endpoint's contract: the envelope travels under
// "response", unlike the read endpoints which use "data".
type queryResponse struct {
	Success  bool        `json:"success"`
	Response interface{} `json:"response"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("body", "unreadable request body"))
		return
	}

	result, err := validation.ValidateJSON(body, validation.QueryRequestSchema)
	if err != nil {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("body", "request body must be a JSON object"))
		return
	}
	if !result.Valid {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("body", result.Describe()))
		return
	}

	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("body", "request body must be a JSON object"))
		return
	}

	envelope, err := s.pipeline.Ask(r.Context(), req.UserID, req.ConversationID, req.Query)
	if err != nil {
		s.errors.WriteHTTPError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, queryResponse{Success: true, Response: envelope})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("userId", "userId query parameter is required"))
		return
	}

	summaries, err := s.pipeline.Sessions(r.Context(), userID)
	if err != nil {
		s.errors.WriteHTTPError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: summaries})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.errors.WriteHTTPError(w, r, stderrors.NewValidationError("userId", "userId query parameter is required"))
		return
	}

	session, err := s.pipeline.Session(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.errors.WriteHTTPError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Data: session})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, pinger := range s.health {
		if err := pinger.Ping(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":    healthy,
		"components": status,
	})
}
