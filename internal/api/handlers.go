package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/adpulse/internal/domain"
)

// JobReader exposes run state for the read endpoints.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*domain.JobRun, error)
	ListJobs(ctx context.Context, limit int) ([]domain.JobRun, error)
	JobStepLogs(ctx context.Context, jobID string) ([]domain.AccountStepLog, error)
}

// InsightReader exposes detection results per account.
type InsightReader interface {
	ListAnomalies(ctx context.Context, accountID string, since time.Time) ([]domain.Anomaly, error)
	ListPredictions(ctx context.Context, accountID string, since time.Time) ([]domain.BurnoutPrediction, error)
}

// JobController pauses a running job.
type JobController interface {
	Pause(ctx context.Context, jobID string) error
}

// Handlers holds the API dependencies.
type Handlers struct {
	jobs       JobReader
	insights   InsightReader
	controller JobController
}

// NewHandlers creates the handler set. controller may be nil when the server
// runs without a live scheduler.
func NewHandlers(jobs JobReader, insights InsightReader, controller JobController) *Handlers {
	return &Handlers{jobs: jobs, insights: insights, controller: controller}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListJobs returns recent runs, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	jobs, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob returns one run together with its per-account step log.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	logs, err := h.jobs.JobStepLogs(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load step log")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":   job,
		"steps": logs,
	})
}

// PauseJob requests a graceful pause of a running job. In-flight accounts
// finish their current step before workers stop picking up new work.
func (h *Handlers) PauseJob(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondError(w, http.StatusServiceUnavailable, "no scheduler attached")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.controller.Pause(r.Context(), id); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": string(domain.JobPaused),
	})
}

// GetAccountAnomalies returns anomalies for one account, optionally with
// burnout predictions.
func (h *Handlers) GetAccountAnomalies(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	since := sinceParam(r, 12)

	anomalies, err := h.insights.ListAnomalies(r.Context(), accountID, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load anomalies")
		return
	}

	resp := map[string]interface{}{
		"account_id": accountID,
		"since":      since.Format("2006-01-02"),
		"anomalies":  anomalies,
		"total":      len(anomalies),
	}
	if r.URL.Query().Get("predictions") == "true" {
		predictions, err := h.insights.ListPredictions(r.Context(), accountID, since)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load predictions")
			return
		}
		resp["predictions"] = predictions
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetAccountPredictions returns burnout predictions for one account.
func (h *Handlers) GetAccountPredictions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	since := sinceParam(r, 12)

	predictions, err := h.insights.ListPredictions(r.Context(), accountID, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":  accountID,
		"since":       since.Format("2006-01-02"),
		"predictions": predictions,
		"total":       len(predictions),
	})
}

// sinceParam parses ?weeks=N into a cutoff, defaulting to defaultWeeks back.
func sinceParam(r *http.Request, defaultWeeks int) time.Time {
	weeks := defaultWeeks
	if v := r.URL.Query().Get("weeks"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 104 {
			weeks = n
		}
	}
	return time.Now().UTC().AddDate(0, 0, -7*weeks)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
