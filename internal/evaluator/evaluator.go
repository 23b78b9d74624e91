// Package evaluator scores a JobRequest against the raw per-test outputs
// produced by an execution engine (§4.C). It is deterministic and entirely
// side-effect free: no I/O, no clock reads beyond what the engine already
// measured, no dependency on language or engine implementation.
package evaluator

import (
	"bytes"
	"fmt"

	"github.com/bobmcallan/optimus/internal/models"
)

// trim removes leading and trailing ASCII whitespace only (§4.C step 2).
func trim(b []byte) []byte {
	return bytes.TrimFunc(b, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return true
		default:
			return false
		}
	})
}

// classify applies the precedence runtime_error > time_limit_exceeded >
// comparison outcome (§4.C step 2, §8 boundary behavior).
func classify(out models.TestExecutionOutput, expected []byte) models.TestStatus {
	switch {
	case out.RuntimeError:
		return models.TestStatusRuntimeError
	case out.TimedOut:
		return models.TestStatusTimeLimitExceeded
	case bytes.Equal(trim([]byte(out.Stdout)), trim(expected)):
		return models.TestStatusPassed
	default:
		return models.TestStatusFailed
	}
}

// Evaluate scores job against the outputs the engine produced for
// (possibly a subset of) its test cases, per §4.C. outputs need not cover
// every test case in job — unexecuted tests (e.g. a job cancelled
// mid-run) simply contribute nothing to score, but their weight still
// counts toward max_score.
//
// Evaluate returns an error only when an output names a test_id the job
// does not declare; the caller guarantees 1-1 correspondence for tests it
// did execute.
func Evaluate(job *models.JobRequest, outputs []models.TestExecutionOutput) (*models.ExecutionResult, error) {
	results := make([]models.TestResult, 0, len(outputs))
	var score uint64

	for _, out := range outputs {
		tc, ok := job.TestCaseByID(out.TestID)
		if !ok {
			return nil, fmt.Errorf("evaluator: output references unknown test_id %d", out.TestID)
		}

		status := classify(out, tc.ExpectedOutput)
		if status == models.TestStatusPassed {
			score += uint64(tc.Weight)
		}

		results = append(results, models.TestResult{
			TestID:          out.TestID,
			Status:          status,
			Stdout:          out.Stdout,
			Stderr:          out.Stderr,
			ExecutionTimeMS: out.ExecutionTimeMS,
		})
	}

	overall := models.JobStatusFailed
	if score > 0 {
		overall = models.JobStatusCompleted
	}

	return &models.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: overall,
		Score:         score,
		MaxScore:      job.MaxScore(),
		Results:       results,
	}, nil
}

// Cancelled builds the terminal result for a job cancelled before any test
// executed: score 0, empty results, max_score the full intended work (§3,
// §8).
func Cancelled(job *models.JobRequest) *models.ExecutionResult {
	return &models.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: models.JobStatusCancelled,
		Score:         0,
		MaxScore:      job.MaxScore(),
		Results:       []models.TestResult{},
	}
}

// CancelledMidJob builds the terminal result for a job whose cancellation
// was observed between test cases: overall_status cancelled, partial
// results, score computed only over the completed-and-passed tests (§4.E
// cancellation semantics).
func CancelledMidJob(job *models.JobRequest, outputs []models.TestExecutionOutput) (*models.ExecutionResult, error) {
	result, err := Evaluate(job, outputs)
	if err != nil {
		return nil, err
	}
	result.OverallStatus = models.JobStatusCancelled
	return result, nil
}
