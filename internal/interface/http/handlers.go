// Package http implements the REST API of PMCraft Hub.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/application/command"
	"github.com/pmcraft/pmcraft-hub/internal/application/query"
	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot describes the API surface for whoever lands on /.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "PMCraft Hub API",
		"version":     "v1",
		"description": "Progress and achievement engine for the PMCraft learning platform",
		"endpoints": map[string]string{
			"health":       "/health",
			"stats":        "/api/v1/progress/{userId}/stats",
			"achievements": "/api/v1/progress/{userId}/achievements",
		},
	})
}

// handleHealth reports the aggregated dependency probes. Without a checker
// configured (tests, stripped-down deployments) it reports bare liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": "v1",
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleReady is the Kubernetes readiness probe. A not-ready answer takes the
// instance out of rotation without restarting it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive is the Kubernetes liveness probe. It must not touch any
// dependency: a dead database should not get the process killed.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROVISIONING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateProgress handles POST /api/v1/progress/{userId}
func (s *Server) handleCreateProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.CreateInitialProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Provisioning handler not configured")
		return
	}

	cmd := command.CreateInitialProgressCommand{
		UserID:        userID,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.CreateInitialProgressHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to provision progress")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleDeleteProgress handles DELETE /api/v1/progress/{userId}
func (s *Server) handleDeleteProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.DeleteProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Delete handler not configured")
		return
	}

	cmd := command.DeleteProgressCommand{
		UserID:        userID,
		CorrelationID: getRequestID(r.Context()),
	}

	if err := s.deps.DeleteProgressHandler.Handle(r.Context(), cmd); err != nil {
		s.writeDomainError(w, r, err, "failed to delete progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT RECORDING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// lessonEventRequest is the body of POST /api/v1/progress/{userId}/lesson.
type lessonEventRequest struct {
	LessonID  string     `json:"lesson_id"`
	Completed bool       `json:"completed"`
	TimeSpent int        `json:"time_spent"`
	Score     *int       `json:"score,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// handleRecordLesson handles POST /api/v1/progress/{userId}/lesson
func (s *Server) handleRecordLesson(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.RecordLessonEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Lesson handler not configured")
		return
	}

	var req lessonEventRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.RecordLessonEventCommand{
		UserID:        userID,
		LessonID:      req.LessonID,
		Completed:     req.Completed,
		TimeSpent:     req.TimeSpent,
		Score:         req.Score,
		CorrelationID: getRequestID(r.Context()),
	}
	if req.Timestamp != nil {
		cmd.Timestamp = *req.Timestamp
	}

	result, err := s.deps.RecordLessonEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to record lesson event")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// scenarioEventRequest is the body of POST /api/v1/progress/{userId}/scenario.
type scenarioEventRequest struct {
	ScenarioID string     `json:"scenario_id"`
	Score      int        `json:"score"`
	TimeSpent  int        `json:"time_spent"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// handleRecordScenario handles POST /api/v1/progress/{userId}/scenario
func (s *Server) handleRecordScenario(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.RecordScenarioEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scenario handler not configured")
		return
	}

	var req scenarioEventRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.RecordScenarioEventCommand{
		UserID:        userID,
		ScenarioID:    req.ScenarioID,
		Score:         req.Score,
		TimeSpent:     req.TimeSpent,
		CorrelationID: getRequestID(r.Context()),
	}
	if req.Timestamp != nil {
		cmd.Timestamp = *req.Timestamp
	}

	result, err := s.deps.RecordScenarioEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to record scenario event")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// scenarioAnalysisRequest is the body of POST /api/v1/progress/{userId}/scenario/analysis.
type scenarioAnalysisRequest struct {
	ScenarioID   string     `json:"scenario_id"`
	ResponseText string     `json:"response_text"`
	Language     string     `json:"language,omitempty"`
	TimeSpent    int        `json:"time_spent"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// handleAnalyzeScenario handles POST /api/v1/progress/{userId}/scenario/analysis
func (s *Server) handleAnalyzeScenario(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.AnalyzeScenarioResponseHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Analysis handler not configured")
		return
	}

	var req scenarioAnalysisRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	cmd := command.AnalyzeScenarioResponseCommand{
		UserID:        userID,
		ScenarioID:    req.ScenarioID,
		ResponseText:  req.ResponseText,
		Language:      req.Language,
		TimeSpent:     req.TimeSpent,
		CorrelationID: getRequestID(r.Context()),
	}
	if req.Timestamp != nil {
		cmd.Timestamp = *req.Timestamp
	}

	result, err := s.deps.AnalyzeScenarioResponseHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to analyze scenario response")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/progress/{userId}/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.GetStatsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Stats handler not configured")
		return
	}

	result, err := s.deps.GetStatsHandler.Handle(r.Context(), query.GetStatsQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/progress/{userId}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	if s.deps.GetAchievementsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Achievements handler not configured")
		return
	}

	q := query.GetAchievementsQuery{
		UserID:       userID,
		OnlyUnlocked: r.URL.Query().Get("unlocked") == "true",
	}

	result, err := s.deps.GetAchievementsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get achievements")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps domain errors onto HTTP status codes:
// validation -> 400, not found -> 404, already exists / write conflict -> 409,
// evaluator rate limit -> 429, unavailable dependency -> 503.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	requestID := getRequestID(r.Context())

	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())

	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())

	case shared.IsConflict(err):
		// The write path already retried the conflict; reaching here means
		// contention persisted through all attempts.
		writeJSONError(w, http.StatusConflict, "concurrency_conflict", err.Error())

	case errors.Is(err, shared.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusTooManyRequests, "dependency_rate_limited", err.Error())

	case shared.IsExternalService(err):
		s.logger.Error(logMsg, logger.Err(err), logger.String("request_id", requestID))
		writeJSONError(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error())

	default:
		s.logger.Error(logMsg, logger.Err(err), logger.String("request_id", requestID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
