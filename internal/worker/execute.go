package worker

import (
	"context"
	"time"

	"github.com/bobmcallan/optimus/internal/evaluator"
	"github.com/bobmcallan/optimus/internal/models"
)

// persistCancelledBeforeStart handles the cancellation pre-check (§4.E
// step 2): the job never ran a single test case.
func (w *Worker) persistCancelledBeforeStart(ctx context.Context, job *models.JobRequest) {
	result := evaluator.Cancelled(job)
	w.persistTerminal(ctx, job, result, 0)
}

// executeJob runs §4.E's "Execute algorithm" for one attempt of job: each
// test case in declared order, re-checking cancellation before each, and
// halting the whole attempt on the first engine-level (infrastructure)
// error.
func (w *Worker) executeJob(ctx context.Context, job *models.JobRequest) {
	outputs := make([]models.TestExecutionOutput, 0, len(job.TestCases))
	cancelledMidJob := false

	var infraErr error
	attemptStart := time.Now()

	for _, tc := range job.TestCases {
		control, err := w.store.GetControl(ctx, job.ID)
		if err == nil && control.Cancelled {
			cancelledMidJob = true
			break
		}

		out, err := w.engine.Execute(ctx, job.Language, job.SourceCode, tc.Input, job.TimeoutMS)
		if err != nil {
			infraErr = err
			break
		}
		out.TestID = tc.ID
		outputs = append(outputs, out)
	}

	if infraErr != nil {
		w.handleInfrastructureError(ctx, job, infraErr)
		return
	}

	var result *models.ExecutionResult
	var err error
	if cancelledMidJob {
		result, err = evaluator.CancelledMidJob(job, outputs)
	} else {
		result, err = evaluator.Evaluate(job, outputs)
	}
	if err != nil {
		// The loop above tags each output with its own test case's ID, so
		// the evaluator should never see an unknown test_id; reaching here
		// means that correspondence was broken. Treat it the same as an
		// infrastructure error rather than silently dropping the job.
		w.handleInfrastructureError(ctx, job, err)
		return
	}

	w.persistTerminal(ctx, job, result, time.Since(attemptStart).Milliseconds())
}

// handleInfrastructureError implements §4.E's retry/DLQ decision: increment
// attempts, record the reason, and either re-enqueue to the retry lane or
// give up to the DLQ with a terminal failed result.
func (w *Worker) handleInfrastructureError(ctx context.Context, job *models.JobRequest, cause error) {
	job.Metadata.Attempts++
	reason := cause.Error()
	job.Metadata.LastFailureReason = &reason

	if job.Metadata.Attempts < job.Metadata.MaxAttempts {
		if err := w.store.PushRetry(ctx, job); err != nil {
			w.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to re-enqueue job to retry lane")
		}
		w.logger.Warn().
			Str("job_id", job.ID).
			Int("attempt", int(job.Metadata.Attempts)).
			Int("max_attempts", int(job.Metadata.MaxAttempts)).
			Err(cause).
			Msg("Job attempt failed, re-queued for retry")
		return
	}

	if err := w.store.PushDLQ(ctx, job); err != nil {
		w.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to push exhausted job to DLQ")
	}
	w.logger.Error().
		Str("job_id", job.ID).
		Int("attempts", int(job.Metadata.Attempts)).
		Err(cause).
		Msg("Job exhausted retry budget, moved to DLQ")

	result := &models.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: models.JobStatusFailed,
		Score:         0,
		MaxScore:      job.MaxScore(),
		Results:       []models.TestResult{},
	}
	w.persistTerminal(ctx, job, result, 0)
}

// persistTerminal writes the result key, mirrors overall_status to the
// status key, and publishes a completion event — in that order, so that
// any reader of the event can immediately read the result (§5 ordering
// guarantee).
func (w *Worker) persistTerminal(ctx context.Context, job *models.JobRequest, result *models.ExecutionResult, executionTimeMS int64) {
	if err := w.store.SaveResult(ctx, result); err != nil {
		w.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to persist result")
		return
	}
	if err := w.store.SetStatus(ctx, job.ID, result.OverallStatus); err != nil {
		w.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to mirror status key")
	}

	event := models.CompletionEvent{
		JobID:           job.ID,
		Language:        job.Language,
		Status:          result.OverallStatus,
		ExecutionTimeMS: executionTimeMS,
		Timestamp:       time.Now(),
	}
	if err := w.store.PublishCompletion(ctx, event); err != nil {
		w.logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to publish completion event")
	}
}
