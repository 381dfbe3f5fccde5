// Package queue implements the durable, Redis-backed job queue described
// in spec.md §4.1 and §6: lease-based delivery, attempt tracking,
// exponential backoff, and DLQ routing under a "bull:<queue>:..." key
// namespace. The wiring style (a typed struct wrapping *redis.Client, with
// a MULTI/EXEC pipeline where an operation must be atomic) is grounded on the
// teacher's pkg/kernel/limiter_redis.go.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the Redis backend cannot be reached.
// Per spec.md §4.1's failure model, the client blocks new enqueues and
// surfaces this as a retryable error rather than silently dropping work.
var ErrUnavailable = errors.New("queue: backend unavailable")

// Payload is the job body. Only LeadID is defined by spec.md §3, but the
// type is kept separate from the envelope so future job kinds can add
// fields without touching the envelope/lease machinery.
type Payload struct {
	LeadID int64 `json:"leadId"`
}

// Job is a leased unit of work.
type Job struct {
	ID          string    `json:"id"`
	Data        Payload   `json:"data"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastError   string    `json:"lastError,omitempty"`

	queue string // which base queue this job was leased from (internal bookkeeping)
}

// DLQEntry is the payload moved to "<queue>-dlq" once attempts are exhausted.
type DLQEntry struct {
	OriginalJobID string    `json:"originalJobId"`
	LeadID        int64     `json:"leadId"`
	Error         string    `json:"error"`
	AttemptsMade  int       `json:"attemptsMade"`
	FailedAt      time.Time `json:"failedAt"`
}

// EnqueueOptions configures retry behavior for a new job.
type EnqueueOptions struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultEnqueueOptions matches spec.md §4.1's defaults.
func DefaultEnqueueOptions() EnqueueOptions {
	return EnqueueOptions{Attempts: 5, BaseDelay: time.Second}
}

// Client is a durable, at-least-once queue client over Redis.
type Client struct {
	rdb *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func baseKey(queue string) string       { return fmt.Sprintf("bull:%s", queue) }
func pendingKey(queue string) string    { return fmt.Sprintf("%s:pending", baseKey(queue)) }
func jobKey(queue, id string) string    { return fmt.Sprintf("%s:job:%s", baseKey(queue), id) }
func dlqKey(queue string) string        { return fmt.Sprintf("bull:%s-dlq:pending", queue) }
func dlqJobKey(queue, id string) string { return fmt.Sprintf("bull:%s-dlq:job:%s", queue, id) }

// Enqueue durably persists a job and makes it immediately leasable.
func (c *Client) Enqueue(ctx context.Context, queue string, payload Payload, opts EnqueueOptions) (*Job, error) {
	if opts.Attempts <= 0 {
		opts = DefaultEnqueueOptions()
	}
	job := &Job{
		ID:          uuid.NewString(),
		Data:        payload,
		Attempts:    0,
		MaxAttempts: opts.Attempts,
		FirstSeen:   time.Now().UTC(),
		queue:       queue,
	}
	if err := c.persist(ctx, job); err != nil {
		return nil, err
	}
	if err := c.rdb.RPush(ctx, pendingKey(queue), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return job, nil
}

func (c *Client) persist(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := c.rdb.Set(ctx, jobKey(job.queue, job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Lease blocks until a job is available on queue (or ctx is cancelled, or
// timeout elapses) and returns it. Leasing pops the job id off the pending
// list and leases do not expire: a leased job is delivered again only when
// Fail reschedules it, and a job that is neither acked nor failed is not
// redelivered.
func (c *Client) Lease(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	res, err := c.rdb.BLPop(ctx, timeout, pendingKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// res[0] is the key name, res[1] is the job ID.
	id := res[1]
	data, err := c.rdb.Get(ctx, jobKey(queue, id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}
	job.queue = queue
	return &job, nil
}

// Ack removes a successfully processed job's persisted state.
func (c *Client) Ack(ctx context.Context, job *Job) error {
	if err := c.rdb.Del(ctx, jobKey(job.queue, job.ID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// OnExhausted is invoked when a job's attempts are exhausted, letting the
// caller (typically a DLQ processor) react synchronously to the move.
type OnExhausted func(ctx context.Context, job *Job, entry DLQEntry)

// Fail records a processing failure, incrementing the attempt counter and
// rescheduling with exponential backoff base * 2^(attempts-1). Once
// attempts reach MaxAttempts, the job moves to "<queue>-dlq" instead of
// being rescheduled (spec.md §4.1).
func (c *Client) Fail(ctx context.Context, job *Job, cause error, baseDelay time.Duration, onExhausted OnExhausted) error {
	job.Attempts++
	job.LastError = cause.Error()

	if job.Attempts >= job.MaxAttempts {
		entry := DLQEntry{
			OriginalJobID: job.ID,
			LeadID:        job.Data.LeadID,
			Error:         job.LastError,
			AttemptsMade:  job.Attempts,
			FailedAt:      time.Now().UTC(),
		}
		if err := c.moveToDLQ(ctx, job, entry); err != nil {
			return err
		}
		if onExhausted != nil {
			onExhausted(ctx, job, entry)
		}
		return nil
	}

	if err := c.persist(ctx, job); err != nil {
		return err
	}
	delay := time.Duration(math.Pow(2, float64(job.Attempts-1))) * baseDelay
	return c.scheduleRedelivery(ctx, job, delay)
}

func (c *Client) moveToDLQ(ctx context.Context, job *Job, entry DLQEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshal dlq entry: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, dlqJobKey(job.queue, job.ID), data, 0)
	pipe.RPush(ctx, dlqKey(job.queue), job.ID)
	pipe.Del(ctx, jobKey(job.queue, job.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// scheduleRedelivery pushes the job id back onto the pending list (Fail has
// already re-persisted the job): immediately when delay is not positive,
// otherwise from a background timer once delay elapses, so Fail itself
// doesn't block the caller. If ctx is cancelled before the timer fires,
// the job is not pushed back.
func (c *Client) scheduleRedelivery(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return c.rdb.RPush(ctx, pendingKey(job.queue), job.ID).Err()
	}
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			_ = c.rdb.RPush(context.Background(), pendingKey(job.queue), job.ID).Err()
		case <-ctx.Done():
		}
	}()
	return nil
}

// LeaseDLQ pops the next entry from a queue's dead-letter list, for a
// consumer that reads DLQ entries on its own; the worker handles exhausted
// jobs through Fail's OnExhausted callback instead.
func (c *Client) LeaseDLQ(ctx context.Context, queue string, timeout time.Duration) (*DLQEntry, error) {
	res, err := c.rdb.BLPop(ctx, timeout, dlqKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id := res[1]
	data, err := c.rdb.Get(ctx, dlqJobKey(queue, id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var entry DLQEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("queue: unmarshal dlq entry: %w", err)
	}
	_ = c.rdb.Del(ctx, dlqJobKey(queue, id)).Err()
	return &entry, nil
}
