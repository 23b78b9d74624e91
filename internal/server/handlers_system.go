package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/queue"
)

type healthResponse struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	StoreConnected bool    `json:"redis_connected"`
	Timestamp      string  `json:"timestamp"`
}

// handleHealth implements §4.F's liveness endpoint: a cheap store ping that
// degrades the response to 503 without ever crashing the process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	connected := s.store.Ping(ctx) == nil

	resp := healthResponse{
		Status:         "ok",
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		StoreConnected: connected,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if !connected {
		resp.Status = "degraded"
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleDebug implements §4.F Debug: a linear scan of every enabled
// language's main/retry/DLQ lanes, combined with the result key.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	record := models.DebugRecord{Status: models.JobStatusQueued}

	if status, ok, err := s.store.GetStatus(ctx, jobID); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read status", "store_error")
		return
	} else if ok {
		record.Status = status
	}

	applyLaneMetadata := func(job *models.JobRequest) {
		record.Attempts = job.Metadata.Attempts
		record.MaxAttempts = job.Metadata.MaxAttempts
		record.LastFailureReason = job.Metadata.LastFailureReason
	}

	for _, lang := range s.registry.Enabled() {
		if job, err := s.store.FindInLane(ctx, queue.MainQueueKey(lang), jobID); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to scan main queue", "store_error")
			return
		} else if job != nil {
			record.InMainQueue = true
			applyLaneMetadata(job)
		}
		if job, err := s.store.FindInLane(ctx, queue.RetryQueueKey(lang), jobID); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to scan retry queue", "store_error")
			return
		} else if job != nil {
			record.InRetryQueue = true
			applyLaneMetadata(job)
		}
		if job, err := s.store.FindInLane(ctx, queue.DLQKey(lang), jobID); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to scan dead-letter queue", "store_error")
			return
		} else if job != nil {
			record.InDLQ = true
			applyLaneMetadata(job)
		}
	}

	if result, ok, err := s.store.GetResult(ctx, jobID); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read result", "store_error")
		return
	} else if ok {
		record.Result = result
		record.Status = result.OverallStatus
	}

	WriteJSON(w, http.StatusOK, record)
}
