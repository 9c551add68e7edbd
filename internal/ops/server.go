// Package ops exposes the operational HTTP interface: health, metrics and the
// administrative retry actions.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/state"
)

// StateAdmin is the slice of the processing-state store the server needs.
type StateAdmin interface {
	Statistics(ctx context.Context, ct state.ContentType) (state.Stats, error)
	RetryItem(ctx context.Context, ct state.ContentType, contentID int64) (int64, error)
	RetryAllFailed(ctx context.Context, ct state.ContentType) (int64, error)
}

// Server wires HTTP handlers to the processing-state store.
type Server struct {
	router chi.Router
	states StateAdmin
	logger *zap.Logger
}

// NewServer constructs a Server with its routes.
func NewServer(states StateAdmin, logger *zap.Logger) *Server {
	s := &Server{
		states: states,
		logger: logger,
	}
	r := chi.NewRouter()

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats/{type}", s.getStats)
		r.Post("/retry/{type}/{id}", s.retryItem)
		r.Post("/retry-failed", s.retryAllFailed)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	ContentType       string  `json:"content_type"`
	Total             int64   `json:"total"`
	Completed         int64   `json:"completed"`
	Failed            int64   `json:"failed"`
	PermanentlyFailed int64   `json:"permanently_failed"`
	Pending           int64   `json:"pending"`
	Processing        int64   `json:"processing"`
	CompletionRate    float64 `json:"completion_rate"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ct, err := state.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.states.Statistics(r.Context(), ct)
	if err != nil {
		s.logger.Error("statistics query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "statistics query failed")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ContentType:       string(ct),
		Total:             stats.Total,
		Completed:         stats.Completed,
		Failed:            stats.Failed,
		PermanentlyFailed: stats.PermanentlyFailed,
		Pending:           stats.Pending,
		Processing:        stats.Processing,
		CompletionRate:    stats.CompletionRate(),
	})
}

func (s *Server) retryItem(w http.ResponseWriter, r *http.Request) {
	ct, err := state.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return
	}
	n, err := s.states.RetryItem(r.Context(), ct, id)
	switch {
	case errors.Is(err, state.ErrNotTracked):
		writeError(w, http.StatusNotFound, "item not tracked")
		return
	case errors.Is(err, state.ErrNotFailed):
		writeError(w, http.StatusConflict, "item is not in a failed state")
		return
	case err != nil:
		s.logger.Error("retry item failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

func (s *Server) retryAllFailed(w http.ResponseWriter, r *http.Request) {
	var ct state.ContentType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := state.ParseContentType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ct = parsed
	}
	n, err := s.states.RetryAllFailed(r.Context(), ct)
	if err != nil {
		s.logger.Error("retry all failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
