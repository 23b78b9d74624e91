package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/engine"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/queue"
	"github.com/bobmcallan/optimus/internal/registry"
)

// fakeStore is an in-memory Store used to drive the worker loop without a
// live Redis, mirroring the teacher's preference for hand-rolled fakes in
// package-level tests over a mocking framework.
type fakeStore struct {
	mu           sync.Mutex
	main         []*models.JobRequest
	retry        []*models.JobRequest
	dlq          []*models.JobRequest
	control      map[string]models.JobControl
	results      map[string]*models.ExecutionResult
	statuses     map[string]models.JobStatus
	completions  []models.CompletionEvent
	popCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		control:  make(map[string]models.JobControl),
		results:  make(map[string]*models.ExecutionResult),
		statuses: make(map[string]models.JobStatus),
	}
}

func (s *fakeStore) PopWithRetry(ctx context.Context, lang models.Language, idleTimeout time.Duration) (*models.JobRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.popCalls++
	if len(s.main) > 0 {
		job := s.main[0]
		s.main = s.main[1:]
		return job, nil
	}
	if len(s.retry) > 0 {
		job := s.retry[0]
		s.retry = s.retry[1:]
		return job, nil
	}
	return nil, queue.ErrEmpty
}

func (s *fakeStore) PushRetry(ctx context.Context, job *models.JobRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = append(s.retry, job)
	return nil
}

func (s *fakeStore) PushDLQ(ctx context.Context, job *models.JobRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, job)
	return nil
}

func (s *fakeStore) GetControl(ctx context.Context, jobID string) (models.JobControl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control[jobID], nil
}

func (s *fakeStore) setCancelled(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.control[jobID] = models.JobControl{Cancelled: true}
}

func (s *fakeStore) SaveResult(ctx context.Context, result *models.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobID] = result
	return nil
}

func (s *fakeStore) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[jobID] = status
	return nil
}

func (s *fakeStore) PublishCompletion(ctx context.Context, event models.CompletionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, event)
	return nil
}

func (s *fakeStore) resultFor(t *testing.T, jobID string) *models.ExecutionResult {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[jobID]
}

func testJob(id string, tests ...models.TestCase) *models.JobRequest {
	return &models.JobRequest{
		ID:         id,
		Language:   models.LanguagePython,
		SourceCode: "print(input())",
		TestCases:  tests,
		TimeoutMS:  5000,
		Metadata:   models.JobMetadata{MaxAttempts: 3},
	}
}

func newTestWorker(t *testing.T, store Store, eng engine.Engine) *Worker {
	t.Helper()
	reg, err := registry.New([]registry.LanguageEntry{
		{Language: models.LanguagePython, Image: "optimus-runner-python:latest", MemoryMiB: 256, CPULimit: 1, Queue: queue.MainQueueKey(models.LanguagePython)},
	})
	require.NoError(t, err)

	cfg := Config{
		Language:        models.LanguagePython,
		Queue:           queue.MainQueueKey(models.LanguagePython),
		Image:           "optimus-runner-python:latest",
		MaxParallelJobs: 2,
	}
	w, err := New(cfg, reg, store, eng, common.NewSilentLogger())
	require.NoError(t, err)
	return w
}

func runUntilIdle(t *testing.T, store *fakeStore, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		empty := len(store.main) == 0 && len(store.retry) == 0
		resultCount := len(store.results)
		store.mu.Unlock()
		if empty && resultCount > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestWorker_AllPass(t *testing.T) {
	store := newFakeStore()
	eng := engine.NewStubEngine()
	w := newTestWorker(t, store, eng)

	job := testJob("job-1",
		models.TestCase{ID: 1, Input: []byte("hello"), ExpectedOutput: []byte("hello"), Weight: 10},
		models.TestCase{ID: 2, Input: []byte("world"), ExpectedOutput: []byte("world"), Weight: 15},
	)
	store.main = append(store.main, job)

	runUntilIdle(t, store, w)

	result := store.resultFor(t, "job-1")
	require.NotNil(t, result)
	assert.Equal(t, models.JobStatusCompleted, result.OverallStatus)
	assert.EqualValues(t, 25, result.Score)
	assert.EqualValues(t, 25, result.MaxScore)
}

func TestWorker_PartialPass(t *testing.T) {
	store := newFakeStore()
	eng := engine.NewStubEngine()
	w := newTestWorker(t, store, eng)

	job := testJob("job-2",
		models.TestCase{ID: 1, Input: []byte("hello"), ExpectedOutput: []byte("hello"), Weight: 10},
		models.TestCase{ID: 2, Input: []byte("world"), ExpectedOutput: []byte("different"), Weight: 15},
	)
	store.main = append(store.main, job)

	runUntilIdle(t, store, w)

	result := store.resultFor(t, "job-2")
	require.NotNil(t, result)
	assert.Equal(t, models.JobStatusCompleted, result.OverallStatus)
	assert.EqualValues(t, 10, result.Score)
	assert.EqualValues(t, 25, result.MaxScore)
}

func TestWorker_Timeout(t *testing.T) {
	store := newFakeStore()
	eng := engine.NewStubEngine()
	eng.Script["slow"] = engine.StubBehavior{TimedOut: true}
	w := newTestWorker(t, store, eng)

	job := testJob("job-3",
		models.TestCase{ID: 1, Input: []byte("slow"), ExpectedOutput: []byte("slow"), Weight: 10},
	)
	store.main = append(store.main, job)

	runUntilIdle(t, store, w)

	result := store.resultFor(t, "job-3")
	require.NotNil(t, result)
	assert.Equal(t, models.JobStatusFailed, result.OverallStatus)
	assert.Equal(t, models.TestStatusTimeLimitExceeded, result.Results[0].Status)
}

func TestWorker_RoutingErrorGoesToDLQ(t *testing.T) {
	store := newFakeStore()
	eng := engine.NewStubEngine()
	w := newTestWorker(t, store, eng)

	job := testJob("job-4", models.TestCase{ID: 1, Input: []byte("x"), ExpectedOutput: []byte("x"), Weight: 10})
	job.Language = models.LanguageJava // mismatched vs the python-bound worker
	store.main = append(store.main, job)

	runUntilIdle(t, store, w)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.dlq, 1)
	assert.Equal(t, "routing error", *store.dlq[0].Metadata.LastFailureReason)
	assert.Empty(t, store.results)
}

func TestWorker_CancellationBeforeStart(t *testing.T) {
	store := newFakeStore()
	eng := engine.NewStubEngine()
	w := newTestWorker(t, store, eng)

	job := testJob("job-5", models.TestCase{ID: 1, Input: []byte("x"), ExpectedOutput: []byte("x"), Weight: 10})
	store.setCancelled("job-5")
	store.main = append(store.main, job)

	runUntilIdle(t, store, w)

	result := store.resultFor(t, "job-5")
	require.NotNil(t, result)
	assert.Equal(t, models.JobStatusCancelled, result.OverallStatus)
	assert.Zero(t, result.Score)
	assert.Empty(t, result.Results)
}

func TestWorker_MismatchedBindingFailsConstruction(t *testing.T) {
	reg, err := registry.New([]registry.LanguageEntry{
		{Language: models.LanguagePython, Image: "optimus-runner-python:latest", MemoryMiB: 256, CPULimit: 1, Queue: queue.MainQueueKey(models.LanguagePython)},
	})
	require.NoError(t, err)

	_, err = New(Config{
		Language: models.LanguagePython,
		Queue:    queue.MainQueueKey(models.LanguagePython),
		Image:    "some-other-image:latest",
	}, reg, newFakeStore(), engine.NewStubEngine(), common.NewSilentLogger())
	require.Error(t, err)
}
