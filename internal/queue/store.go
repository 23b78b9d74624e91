// Package queue implements the key/queue schema (§4.A): deterministic key
// derivation plus the Redis-backed store that producers (the submission
// front-end) and consumers (workers) share. The key-derivation functions in
// keys.go are the single source of truth that prevents schema drift between
// the two sides; Store is the thin, concrete binding of that schema onto a
// real key/value store.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/models"
)

// ErrEmpty is returned by PopWithRetry when the idle budget elapses with no
// job available on either lane.
var ErrEmpty = errors.New("queue: empty")

// Store is the concrete binding of §4.A onto a real key/value store. The
// store itself is assumed (per spec.md §1) to provide blocking list-pop,
// set-with-TTL, pub/sub, and atomic list-push; Store does not re-specify
// those primitives, only the schema layered on top of them.
type Store struct {
	rdb *redis.Client
}

// NewStore opens a connection to the key/value store at addr.
func NewStore(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping checks store reachability for the health endpoint (§4.F).
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Enqueue appends a job to the tail of its language's main queue.
func (s *Store) Enqueue(ctx context.Context, job *models.JobRequest) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := s.rdb.RPush(ctx, MainQueueKey(job.Language), data).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

// PushRetry appends a job to the retry lane after an engine-level failure.
func (s *Store) PushRetry(ctx context.Context, job *models.JobRequest) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := s.rdb.RPush(ctx, RetryQueueKey(job.Language), data).Err(); err != nil {
		return fmt.Errorf("queue: push retry: %w", err)
	}
	return nil
}

// PushDLQ appends a job to the append-only dead-letter lane. Never consumed
// again by the core.
func (s *Store) PushDLQ(ctx context.Context, job *models.JobRequest) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := s.rdb.RPush(ctx, DLQKey(job.Language), data).Err(); err != nil {
		return fmt.Errorf("queue: push dlq: %w", err)
	}
	return nil
}

// PopWithRetry blocks up to idleTimeout on [main_queue, retry_queue] for a
// language, with strict priority to main — BLPOP checks the keys in the
// order supplied and returns from the first one that has an element, even
// when both are ready simultaneously. Returns ErrEmpty when the idle budget
// elapses with nothing to pop (§4.E main loop step 1).
func (s *Store) PopWithRetry(ctx context.Context, lang models.Language, idleTimeout time.Duration) (*models.JobRequest, error) {
	res, err := s.rdb.BLPop(ctx, idleTimeout, MainQueueKey(lang), RetryQueueKey(lang)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("queue: pop: %w", err)
	}
	// res[0] is the key popped from, res[1] is the value.
	var job models.JobRequest
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal popped job: %w", err)
	}
	return &job, nil
}

// SaveResult persists the terminal ExecutionResult under the result key
// with the 24h retention TTL (§3).
func (s *Store) SaveResult(ctx context.Context, result *models.ExecutionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("queue: marshal result: %w", err)
	}
	if err := s.rdb.Set(ctx, ResultKey(result.JobID), data, common.ResultTTL).Err(); err != nil {
		return fmt.Errorf("queue: save result: %w", err)
	}
	return nil
}

// GetResult fetches the result key. ok is false when absent (202 pending
// per §4.F).
func (s *Store) GetResult(ctx context.Context, jobID string) (result *models.ExecutionResult, ok bool, err error) {
	data, err := s.rdb.Get(ctx, ResultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("queue: get result: %w", err)
	}
	var r models.ExecutionResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, false, fmt.Errorf("queue: unmarshal result: %w", err)
	}
	return &r, true, nil
}

// SetStatus mirrors overall_status at the status key (§4.E).
func (s *Store) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("queue: marshal status: %w", err)
	}
	if err := s.rdb.Set(ctx, StatusKey(jobID), data, common.ResultTTL).Err(); err != nil {
		return fmt.Errorf("queue: set status: %w", err)
	}
	return nil
}

// GetStatus fetches the status key.
func (s *Store) GetStatus(ctx context.Context, jobID string) (status models.JobStatus, ok bool, err error) {
	data, err := s.rdb.Get(ctx, StatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("queue: get status: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return "", false, fmt.Errorf("queue: unmarshal status: %w", err)
	}
	return status, true, nil
}

// SetControl writes the control flag with a 24h TTL (used by Cancel, §4.F).
func (s *Store) SetControl(ctx context.Context, jobID string, control models.JobControl) error {
	data, err := json.Marshal(control)
	if err != nil {
		return fmt.Errorf("queue: marshal control: %w", err)
	}
	if err := s.rdb.Set(ctx, ControlKey(jobID), data, common.ResultTTL).Err(); err != nil {
		return fmt.Errorf("queue: set control: %w", err)
	}
	return nil
}

// GetControl fetches the control flag. Absence is equivalent to
// {cancelled: false} (§3).
func (s *Store) GetControl(ctx context.Context, jobID string) (models.JobControl, error) {
	data, err := s.rdb.Get(ctx, ControlKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.JobControl{Cancelled: false}, nil
	}
	if err != nil {
		return models.JobControl{}, fmt.Errorf("queue: get control: %w", err)
	}
	var c models.JobControl
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return models.JobControl{}, fmt.Errorf("queue: unmarshal control: %w", err)
	}
	return c, nil
}

// PublishCompletion publishes a completion event after its result has been
// written (§5 ordering guarantee).
func (s *Store) PublishCompletion(ctx context.Context, event models.CompletionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: marshal completion event: %w", err)
	}
	return s.rdb.Publish(ctx, CompletionChannel, data).Err()
}

// SubscribeCompletions subscribes to the completion channel (§4.G). The
// caller must call Close on the returned PubSub when done.
func (s *Store) SubscribeCompletions(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, CompletionChannel)
}

// QueueDepth samples the length of a language's main queue, used by the
// metrics collector's per-scrape gauge refresh (§4.G).
func (s *Store) QueueDepth(ctx context.Context, lang models.Language) (int64, error) {
	n, err := s.rdb.LLen(ctx, MainQueueKey(lang)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: queue depth: %w", err)
	}
	return n, nil
}

// FindInLane scans a lane for a job id and returns its current JobRequest
// (including retry metadata) when present. Linear in lane depth — used
// only by the diagnostic Debug operation (§4.F), never on a hot path.
func (s *Store) FindInLane(ctx context.Context, key, jobID string) (*models.JobRequest, error) {
	entries, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan lane %s: %w", key, err)
	}
	for _, raw := range entries {
		var job models.JobRequest
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if job.ID == jobID {
			return &job, nil
		}
	}
	return nil, nil
}
