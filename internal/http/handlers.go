// Package http exposes the service's HTTP surface: popularity tracking,
// the queue-worker trigger, the stale-refresh trigger, and health.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/ingest"
	"github.com/dkarlsen/gamepulse/internal/popularity"
)

// HealthChecks holds per-dependency reachability probes. Nil probes are
// skipped.
type HealthChecks struct {
	CacheStore  func(ctx context.Context) error
	RecordStore func(ctx context.Context) error
	Queue       func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	tracker *popularity.Tracker
	worker  *ingest.Worker
	checks  *HealthChecks
	logger  *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(tracker *popularity.Tracker, worker *ingest.Worker, checks *HealthChecks, logger *zap.Logger) *Handler {
	return &Handler{
		tracker: tracker,
		worker:  worker,
		checks:  checks,
		logger:  logger,
	}
}

type trackRequest struct {
	GameID int64  `json:"gameId"`
	Action string `json:"action"`
}

type trackResponse struct {
	GameID         int64  `json:"gameId"`
	Action         string `json:"action"`
	UniqueSearches int64  `json:"uniqueSearches"`
	TotalSearches  int64  `json:"totalSearches"`
	IsPopular      bool   `json:"isPopular"`
	CanTrack       bool   `json:"canTrack"`
}

// TrackPopularity handles POST /api/games/popularity.
func (h *Handler) TrackPopularity(w http.ResponseWriter, r *http.Request) {
	var body trackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with gameId and action")
		return
	}

	result, err := h.tracker.TrackAction(r.Context(), body.GameID, popularity.Action(body.Action))
	if err != nil {
		switch {
		case errors.Is(err, popularity.ErrInvalidGameID):
			writeError(w, r, http.StatusBadRequest, "INVALID_GAME_ID", "gameId is required and must be positive")
		case errors.Is(err, popularity.ErrInvalidAction):
			writeError(w, r, http.StatusBadRequest, "INVALID_ACTION", "action must be one of view, library, wishlist, rate")
		default:
			writeError(w, r, http.StatusInternalServerError, "STORE_UNAVAILABLE", "unable to record action")
			h.logError(r, "track action failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{
		GameID:         body.GameID,
		Action:         body.Action,
		UniqueSearches: result.Unique,
		TotalSearches:  result.Count,
		IsPopular:      result.Popular,
		CanTrack:       !result.RateLimited,
	})
}

// RunStoreWorker handles POST /api/workers/game-store.
func (h *Handler) RunStoreWorker(w http.ResponseWriter, r *http.Request) {
	result, err := h.worker.ProcessBatch(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "QUEUE_READ_ERROR", "unable to read the game store queue")
		h.logError(r, "store worker batch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"processed": result.Processed,
		"remaining": result.Remaining,
	})
}

type updateRequest struct {
	AccessToken string `json:"accessToken"`
}

// UpdateGames handles POST /api/games/update.
func (h *Handler) UpdateGames(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AccessToken == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_ACCESS_TOKEN", "accessToken is required")
		return
	}

	updated, err := h.worker.RefreshStale(r.Context(), body.AccessToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "UPDATE_FAILED", "unable to refresh outdated games")
		h.logError(r, "stale refresh failed", err)
		return
	}

	resp := map[string]interface{}{}
	if len(updated) == 0 {
		resp["message"] = "no outdated games to update"
	} else {
		resp["message"] = fmt.Sprintf("updated %d games", len(updated))
		resp["updatedGames"] = updated
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles GET /health. Reports per-dependency checks; any
// unhealthy dependency degrades the overall status to 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true
	run := func(name string, probe func() error) {
		if probe == nil {
			return
		}
		if err := probe(); err != nil {
			checks[name] = "unhealthy"
			healthy = false
		} else {
			checks[name] = "healthy"
		}
	}
	if h.checks != nil {
		if h.checks.CacheStore != nil {
			run("cacheStore", func() error { return h.checks.CacheStore(ctx) })
		}
		if h.checks.RecordStore != nil {
			run("recordStore", func() error { return h.checks.RecordStore(ctx) })
		}
		run("queue", h.checks.Queue)
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "gamepulse",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Error(msg, zap.Error(err))
		return
	}
	h.logger.Error(msg, zap.Error(err))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
