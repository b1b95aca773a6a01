// Package server exposes the answering pipeline over HTTP. The surface is
// thin glue: every handler validates input, calls the service, and maps typed
// pipeline failures to status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"memberqa/internal/domain"
	"memberqa/internal/service"
)

const minQuestionLen = 3

// AnswerAPI is the service surface the HTTP layer needs.
type AnswerAPI interface {
	Answer(ctx context.Context, question string) (domain.Answer, error)
	Refresh(ctx context.Context) (domain.BuildSummary, error)
	Stats(ctx context.Context) (service.Stats, error)
}

// Server routes the question-answering API.
type Server struct {
	svc        AnswerAPI
	store      domain.VectorStore
	askTimeout time.Duration
	logger     *slog.Logger
}

func New(svc AnswerAPI, store domain.VectorStore, askTimeout time.Duration, logger *slog.Logger) *Server {
	if askTimeout == 0 {
		askTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, store: store, askTimeout: askTimeout, logger: logger}
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ask", s.handleAsk)
	mux.HandleFunc("GET /refresh", s.handleRefresh)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if len(question) < minQuestionLen {
		writeError(w, http.StatusBadRequest, "question must be at least 3 characters")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.askTimeout)
	defer cancel()

	answer, err := s.svc.Answer(ctx, question)
	if err != nil {
		s.logger.Error("answer failed", "question", question, "err", err)
		status, msg := askFailureStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer.Text})
}

// askFailureStatus maps the pipeline's typed failures onto HTTP statuses so
// clients can distinguish a warming-up index from an upstream model failure.
func askFailureStatus(err error) (int, string) {
	var synErr *domain.SynthesisError
	var encErr *domain.EncodingError
	switch {
	case errors.Is(err, domain.ErrIndexNotReady):
		return http.StatusServiceUnavailable, "index is still warming up, try again shortly"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "vector index unavailable"
	case errors.As(err, &synErr):
		return http.StatusBadGateway, synErr.Error()
	case errors.As(err, &encErr):
		return http.StatusBadGateway, encErr.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Refresh(r.Context())
	if err != nil {
		s.logger.Error("refresh failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Cache refreshed",
		"total_messages": summary.Total,
		"indexed":        summary.Indexed,
		"skipped":        len(summary.Skipped),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_messages": stats.TotalMessages,
		"unique_users":   stats.UniqueSenders,
		"top_users":      stats.TopSenders,
		"index_state":    stats.IndexState.String(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"messages_cached": stats.TotalMessages,
		"vector_store": map[string]any{
			"total_documents": count,
			"state":           stats.IndexState.String(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
