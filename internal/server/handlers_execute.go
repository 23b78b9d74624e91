package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bobmcallan/optimus/internal/models"
)

// submitRequest is the wire shape of POST /execute (§6). TimeoutMS is a
// pointer so an omitted field (use the default) is distinguishable from an
// explicit 0, which §8 requires to be rejected rather than defaulted.
type submitRequest struct {
	Language   string           `json:"language"`
	SourceCode string           `json:"source_code"`
	TestCases  []submitTestCase `json:"test_cases"`
	TimeoutMS  *uint64          `json:"timeout_ms"`
}

type submitTestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Weight         uint32 `json:"weight"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// handleSubmit implements §4.F Submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req submitRequest
	if !DecodeJSON(w, r, &req) {
		s.metrics.IncRejected("malformed_json")
		return
	}

	lang, err := models.ParseLanguage(req.Language)
	if err != nil {
		s.metrics.IncRejected("unknown_language")
		WriteError(w, http.StatusBadRequest, err.Error(), "unknown_language")
		return
	}
	if _, err := s.registry.Lookup(lang); err != nil {
		s.metrics.IncRejected("unknown_language")
		WriteError(w, http.StatusBadRequest, err.Error(), "unknown_language")
		return
	}

	if err := validateSubmission(&req); err != nil {
		ve := err.(*validationError)
		s.metrics.IncRejected(ve.reason)
		WriteError(w, http.StatusBadRequest, ve.message, ve.reason)
		return
	}

	timeout := uint64(defaultTimeoutMS)
	if req.TimeoutMS != nil {
		timeout = *req.TimeoutMS
	}

	testCases := make([]models.TestCase, len(req.TestCases))
	for i, tc := range req.TestCases {
		weight := tc.Weight
		if weight == 0 {
			weight = defaultTestWeight
		}
		testCases[i] = models.TestCase{
			ID:             i + 1, // sequential from 1, ignoring any client-supplied id
			Input:          []byte(tc.Input),
			ExpectedOutput: []byte(tc.ExpectedOutput),
			Weight:         weight,
		}
	}

	job := &models.JobRequest{
		ID:         uuid.New().String(),
		Language:   lang,
		SourceCode: req.SourceCode,
		TestCases:  testCases,
		TimeoutMS:  timeout,
		Metadata:   models.JobMetadata{MaxAttempts: 3},
	}

	if err := s.store.Enqueue(r.Context(), job); err != nil {
		s.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to enqueue submitted job")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job", "enqueue_failure")
		return
	}

	s.metrics.IncSubmitted(lang)
	WriteJSON(w, http.StatusCreated, submitResponse{JobID: job.ID})
}

// handleResult implements §4.F Status/Result.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	result, ok, err := s.store.GetResult(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read result", "store_error")
		return
	}
	if !ok {
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleCancel implements §4.F Cancel: idempotent, conflicts only against
// an already-terminal result.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, ok, err := s.store.GetResult(r.Context(), jobID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to read result", "store_error")
		return
	}
	if ok && result.OverallStatus.IsTerminal() {
		WriteError(w, http.StatusConflict, "job has already reached a terminal state", "already_terminal")
		return
	}

	if err := s.store.SetControl(r.Context(), jobID, models.JobControl{Cancelled: true}); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to set cancellation flag", "store_error")
		return
	}

	s.metrics.IncCancelled()
	s.logger.Info().Str("job_id", jobID).Msg("Cancellation requested")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
