package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/threadlive/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/poll", s.handlePoll)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/threads/{id}/cursor", s.handleThreadCursor)
	mux.HandleFunc("GET /v1/threads/{id}/viewers", s.handleThreadViewers)
	mux.HandleFunc("POST /v1/questions", s.handleCreateQuestion)
	mux.HandleFunc("PATCH /v1/questions/{id}", s.handleUpdateQuestion)
	mux.HandleFunc("POST /v1/questions/{id}/answers", s.handleSubmitAnswer)
	mux.HandleFunc("POST /v1/votes", s.handleCastVote)
	mux.HandleFunc("GET /v1/votes", s.handleGetVotes)
	mux.HandleFunc("POST /v1/answers/{id}/best", s.handleMarkBest)
	mux.HandleFunc("POST /v1/moderation", s.handleModerate)
	mux.HandleFunc("GET /v1/stats/events", s.handleEventStats)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// writeDomainError maps err to its status code and writes it.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, code, "internal server error")
		return
	}
	writeError(w, code, err.Error())
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", model.ErrInvalidArgument, err)
	}
	return nil
}

// int64Param parses a positive integer from a path value or query parameter.
func int64Param(raw, name string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrInvalidArgument, name)
	}
	return n, nil
}
