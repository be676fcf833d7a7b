package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        s.version,
		"storage":        s.cfg.Storage.Driver,
		"queue_enabled":  s.cfg.Queue.Enabled,
		"analytics":      s.analytics != nil,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.progress.Thresholds())
}

// Profile handlers

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		SkillLevel string `json:"skill_level"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	profile, err := s.progress.CreateProfile(r.Context(), req.UserID, req.SkillLevel)
	if err != nil {
		s.serviceError(w, "failed to create profile", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, profile)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.progress.GetProfile(r.Context(), r.PathValue("user_id"))
	if err != nil {
		s.serviceError(w, "failed to get profile", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, profile)
}

func (s *Server) handleGetBand(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	sel, err := s.progress.Recommend(r.Context(), userID)
	if err != nil {
		s.serviceError(w, "failed to select band", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"selection": sel,
		"bands":     sel.Bands(),
	})
}

// Completion handlers

func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	var record domain.CompletionRecord
	if err := decodeBody(w, r, &record); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	outcome, err := s.progress.RecordCompletion(r.Context(), r.PathValue("user_id"), record)
	if err != nil {
		s.serviceError(w, "failed to record completion", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, outcome)
}

func (s *Server) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	history, err := s.progress.History(r.Context(), userID, limit)
	if err != nil {
		s.serviceError(w, "failed to list completions", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"completions": history,
	})
}

// Analytics handlers

func (s *Server) requireAnalytics(w http.ResponseWriter) bool {
	if s.analytics == nil {
		s.jsonError(w, http.StatusNotImplemented, "analytics are not available with the file storage driver", nil)
		return false
	}
	return true
}

func (s *Server) handleBandStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnalytics(w) {
		return
	}
	stats, err := s.analytics.BandStats(r.Context())
	if err != nil {
		s.serviceError(w, "failed to load band stats", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"bands": stats})
}

func (s *Server) handleExerciseStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnalytics(w) {
		return
	}
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		s.jsonError(w, http.StatusBadRequest, "at least one id query parameter is required", nil)
		return
	}
	stats, err := s.analytics.ExerciseStats(r.Context(), ids)
	if err != nil {
		s.serviceError(w, "failed to load exercise stats", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"exercises": stats})
}

func (s *Server) handlePlateauedUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAnalytics(w) {
		return
	}
	users, err := s.analytics.PlateauedUsers(r.Context())
	if err != nil {
		s.serviceError(w, "failed to load plateaued users", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"user_ids": users})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
