package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob("  https://divar.ir/s/tehran/car \n", "chat:42")

	_, err := uuid.Parse(job.ID)
	assert.NoError(t, err)
	assert.Equal(t, "https://divar.ir/s/tehran/car", job.URL)
	assert.Equal(t, "chat:42", job.ReplyTo)
	assert.False(t, job.EnqueuedAt.IsZero())
	assert.Empty(t, job.EntryID())
}

func TestParseJob(t *testing.T) {
	job := parseJob(redis.XMessage{
		ID: "1700000000000-0",
		Values: map[string]interface{}{
			FieldJobID:      "job-1",
			FieldURL:        " https://divar.ir/s/tehran/car ",
			FieldReplyTo:    "chat:42",
			FieldEnqueuedAt: "2024-03-01T12:00:00Z",
		},
	})

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "https://divar.ir/s/tehran/car", job.URL)
	assert.Equal(t, "chat:42", job.ReplyTo)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), job.EnqueuedAt)
	assert.Equal(t, "1700000000000-0", job.EntryID())
}

func TestParseJobFillsMissingFields(t *testing.T) {
	job := parseJob(redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{FieldURL: 42, FieldEnqueuedAt: "yesterday"},
	})

	_, err := uuid.Parse(job.ID)
	assert.NoError(t, err)
	assert.Equal(t, "42", job.URL)
	assert.True(t, job.EnqueuedAt.IsZero())
}

func TestAckRequiresStreamEntry(t *testing.T) {
	q := &RedisQueue{}
	assert.Error(t, q.Ack(context.Background(), NewJob("https://divar.ir", "")))
}

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisQueue(t *testing.T) {
	ctx := context.Background()
	stream := "test_harvest_jobs_" + uuid.NewString()[:8]
	q := NewRedisQueue("localhost:6379", 0, stream, "test_group", "")
	defer q.Close()

	if err := q.client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	defer q.client.Del(ctx, stream)

	require.NoError(t, q.EnsureGroup(ctx))
	require.NoError(t, q.EnsureGroup(ctx), "existing group is not an error")

	id, err := q.Enqueue(ctx, Job{URL: "https://divar.ir/s/tehran/car", ReplyTo: "chat:1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	jobs, err := q.Read(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "https://divar.ir/s/tehran/car", jobs[0].URL)
	assert.Equal(t, "chat:1", jobs[0].ReplyTo)
	assert.NotEmpty(t, jobs[0].EntryID())

	require.NoError(t, q.Ack(ctx, jobs[0]))

	pending, err := q.client.XPending(ctx, stream, "test_group").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	// nothing left to deliver
	jobs, err = q.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// TestRedisQueueRedeliversUnackedAfterRestart requires a running Redis instance
func TestRedisQueueRedeliversUnackedAfterRestart(t *testing.T) {
	ctx := context.Background()
	stream := "test_harvest_jobs_" + uuid.NewString()[:8]
	first := NewRedisQueue("localhost:6379", 0, stream, "test_group", "harvester-a")
	defer first.Close()

	if err := first.client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	defer first.client.Del(ctx, stream)

	require.NoError(t, first.EnsureGroup(ctx))
	id, err := first.Enqueue(ctx, NewJob("https://divar.ir/s/tehran/car", "chat:1"))
	require.NoError(t, err)

	delivered, err := first.Read(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, delivered, 1)

	// the process stops before acknowledging; a new one starts under the same name
	restarted := NewRedisQueue("localhost:6379", 0, stream, "test_group", "harvester-a")
	defer restarted.Close()
	assert.Equal(t, "harvester-a", restarted.Consumer())

	again, err := restarted.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, id, again[0].ID)
	assert.Equal(t, delivered[0].EntryID(), again[0].EntryID())

	require.NoError(t, restarted.Ack(ctx, again[0]))

	// backlog drained, so the next read waits for new entries
	empty, err := restarted.Read(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewRedisQueueConsumerName(t *testing.T) {
	q := NewRedisQueue("localhost:6379", 0, "jobs", "group", "")
	defer q.Close()
	assert.True(t, strings.HasPrefix(q.Consumer(), "harvester-"))

	named := NewRedisQueue("localhost:6379", 0, "jobs", "group", "worker-1")
	defer named.Close()
	assert.Equal(t, "worker-1", named.Consumer())
}
