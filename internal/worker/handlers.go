package worker

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/cadence/internal/refinement"
	"github.com/thebtf/cadence/pkg/models"
)

// refineResponse is returned by the refinement trigger.
type refineResponse struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Message   string `json:"message"`
	JobID     string `json:"job_id,omitempty"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// habitResponse is a persisted cluster without its embedding.
type habitResponse struct {
	ID             string    `json:"id"`
	ClusterLabel   string    `json:"cluster_label"`
	ExemplarTitle  string    `json:"exemplar_title"`
	MemberEventIDs []string  `json:"member_event_ids"`
	MemberCount    int       `json:"member_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// credential extracts the shared secret from a bearer header or the secret query parameter.
func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("secret")
}

// requireSecret rejects requests without the shared secret.
func (s *Service) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.refiner.Authorize(credential(r)) {
			writeError(w, http.StatusUnauthorized, refinement.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireReady rejects requests while the service drains.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service shutting down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !s.ready.Load() {
		status = "draining"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleRefine runs one refinement batch for the scheduler.
func (s *Service) handleRefine(w http.ResponseWriter, r *http.Request) {
	result, err := s.refiner.Trigger(r.Context(), credential(r))
	switch {
	case errors.Is(err, refinement.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, refinement.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("Refinement run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, refineResponse{
		Success:   true,
		Processed: result.Processed,
		Message:   result.Message(),
		JobID:     result.JobID,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
	})
}

func (s *Service) handleGetHabits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	clusters, err := s.refiner.Clusters(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to list habits")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]habitResponse, len(clusters))
	for i, c := range clusters {
		out[i] = habitResponse{
			ID:             c.ID,
			ClusterLabel:   c.ClusterLabel,
			ExemplarTitle:  c.ExemplarTitle,
			MemberEventIDs: c.MemberEventIDs,
			MemberCount:    len(c.MemberEventIDs),
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"habits":  out,
	})
}

func (s *Service) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	patterns, err := s.refiner.Patterns(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to extract patterns")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if patterns == nil {
		patterns = []models.RecurrencePattern{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"patterns": patterns,
	})
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultJobListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxJobListLimit)
	}

	jobs, err := s.jobs.ListRecentJobs(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list refinement jobs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}
