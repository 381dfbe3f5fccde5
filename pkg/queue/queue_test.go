package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb)
}

func TestEnqueueLeaseAck(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	job, err := c.Enqueue(ctx, "lead-ingest", Payload{LeadID: 42}, DefaultEnqueueOptions())
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	leased, err := c.Lease(ctx, "lead-ingest", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(42), leased.Data.LeadID)

	require.NoError(t, c.Ack(ctx, leased))
}

func TestLease_BlocksUntilTimeoutWhenEmpty(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Lease(ctx, "empty-queue", 100*time.Millisecond)
	require.Error(t, err)
	require.True(t, errors.Is(err, redis.Nil))
}

func TestFail_MovesToDLQAfterMaxAttempts(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	job, err := c.Enqueue(ctx, "lead-ingest", Payload{LeadID: 7}, EnqueueOptions{Attempts: 2, BaseDelay: time.Millisecond})
	require.NoError(t, err)

	leased, err := c.Lease(ctx, "lead-ingest", time.Second)
	require.NoError(t, err)

	var exhausted *DLQEntry
	err = c.Fail(ctx, leased, errors.New("boom"), time.Millisecond, func(ctx context.Context, job *Job, entry DLQEntry) {
		e := entry
		exhausted = &e
	})
	require.NoError(t, err)
	require.Nil(t, exhausted, "first failure should reschedule, not exhaust")

	redelivered, err := c.Lease(ctx, "lead-ingest", time.Second)
	require.NoError(t, err)
	require.Equal(t, job.ID, redelivered.ID)

	err = c.Fail(ctx, redelivered, errors.New("boom again"), time.Millisecond, func(ctx context.Context, job *Job, entry DLQEntry) {
		e := entry
		exhausted = &e
	})
	require.NoError(t, err)
	require.NotNil(t, exhausted)
	require.Equal(t, int64(7), exhausted.LeadID)
	require.Equal(t, 2, exhausted.AttemptsMade)

	dlqEntry, err := c.LeaseDLQ(ctx, "lead-ingest", time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(7), dlqEntry.LeadID)
}
