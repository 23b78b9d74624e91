// Package worker implements the per-language consumer loop (§4.E): bounded
// concurrency, per-job cancellation probing, per-test engine invocation
// with the evaluator scoring the result, retry/DLQ decisions, and result
// persistence.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/engine"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/queue"
	"github.com/bobmcallan/optimus/internal/registry"
)

// Store is the subset of queue.Store the worker loop depends on. Declaring
// it here (rather than depending on the concrete type directly) lets tests
// exercise the loop against an in-memory fake without a live Redis.
type Store interface {
	PopWithRetry(ctx context.Context, lang models.Language, idleTimeout time.Duration) (*models.JobRequest, error)
	PushRetry(ctx context.Context, job *models.JobRequest) error
	PushDLQ(ctx context.Context, job *models.JobRequest) error
	GetControl(ctx context.Context, jobID string) (models.JobControl, error)
	SaveResult(ctx context.Context, result *models.ExecutionResult) error
	SetStatus(ctx context.Context, jobID string, status models.JobStatus) error
	PublishCompletion(ctx context.Context, event models.CompletionEvent) error
}

// Config binds a worker process to exactly one language at startup (§4.E).
type Config struct {
	Language         models.Language
	Queue            string
	Image            string
	MaxParallelJobs  int
	MaxParallelTests int // sequential execution within a job is the default (1); reserved for future per-job fan-out
}

// Worker runs the single-threaded driver loop for one language, dispatching
// bounded per-job goroutines under a counting semaphore.
type Worker struct {
	cfg    Config
	store  Store
	engine engine.Engine
	logger *common.Logger

	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the worker's (language, queue, image) binding against the
// registry — the three-way check described in §4.E — and returns a fatal
// error on any mismatch. Never call Start on a worker that failed to
// construct.
func New(cfg Config, reg *registry.Registry, store Store, eng engine.Engine, logger *common.Logger) (*Worker, error) {
	if err := reg.Validate(cfg.Language, cfg.Queue, cfg.Image); err != nil {
		return nil, fmt.Errorf("worker: binding check failed: %w", err)
	}
	if cfg.MaxParallelJobs <= 0 {
		cfg.MaxParallelJobs = 1
	}
	return &Worker{
		cfg:    cfg,
		store:  store,
		engine: eng,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxParallelJobs),
	}, nil
}

// Start launches the main loop and blocks until ctx is cancelled or Stop is
// called, then waits for in-flight jobs to finish (§4.E "Graceful
// shutdown").
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.mainLoop(runCtx)
	w.wg.Wait()
}

// Stop requests shutdown: the driver stops accepting new jobs, but any job
// already dispatched to a goroutine runs to completion.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// safeGo recovers panics in dispatched job goroutines so one bad test case
// never takes down the worker process, mirroring the teacher's job-manager
// goroutine guard.
func (w *Worker) safeGo(jobID string, fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error().
					Str("job_id", jobID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic while executing job")
			}
		}()
		fn()
	}()
}

// mainLoop implements §4.E's main loop: block-pop with a 5s idle budget,
// route/cancel/acquire-permit/dispatch, backing off 1s on pop error.
func (w *Worker) mainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.store.PopWithRetry(ctx, w.cfg.Language, common.IdleBlockDuration)
		if err != nil {
			if err == queue.ErrEmpty {
				w.logger.Debug().Str("language", string(w.cfg.Language)).Msg("Idle tick: no job available")
				continue
			}
			w.logger.Warn().Err(err).Msg("Pop error, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(common.PopErrorBackoff):
			}
			continue
		}

		if job.Language != w.cfg.Language {
			w.routeToDLQ(ctx, job)
			continue
		}

		control, err := w.store.GetControl(ctx, job.ID)
		if err == nil && control.Cancelled {
			w.persistCancelledBeforeStart(ctx, job)
			continue
		}

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		w.safeGo(job.ID, func() {
			defer func() { <-w.sem }()
			// Detached from ctx's cancellation so that Stop lets an
			// in-flight job finish and persist its result.
			w.executeJob(context.WithoutCancel(ctx), job)
		})
	}
}

// routeToDLQ handles the safeguard case where a job arrives on the wrong
// language's queue — a schema bug that must never occur in a correctly
// routed system (§4.E).
func (w *Worker) routeToDLQ(ctx context.Context, job *models.JobRequest) {
	reason := "routing error"
	job.Metadata.LastFailureReason = &reason
	if err := w.store.PushDLQ(ctx, job); err != nil {
		w.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to route mis-delivered job to DLQ")
		return
	}
	w.logger.Error().
		Str("job_id", job.ID).
		Str("job_language", string(job.Language)).
		Str("worker_language", string(w.cfg.Language)).
		Msg("Job routed to wrong worker language; sent to DLQ")
}
