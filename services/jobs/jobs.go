package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields
const (
	FieldJobID      = "job_id"
	FieldURL        = "url"
	FieldReplyTo    = "reply_to"
	FieldEnqueuedAt = "enqueued_at"
)

// Job asks for one listing page to be harvested
type Job struct {
	ID  string `json:"job_id"`
	URL string `json:"url"`
	// ReplyTo is an opaque address of the requester, echoed back in the result
	ReplyTo    string    `json:"reply_to,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// entryID is the stream entry the job was read from
	entryID string
}

// EntryID returns the stream entry ID the job was delivered with
func (j Job) EntryID() string {
	return j.entryID
}

// NewJob creates a job with a fresh ID
func NewJob(url, replyTo string) Job {
	return Job{
		ID:         uuid.NewString(),
		URL:        strings.TrimSpace(url),
		ReplyTo:    replyTo,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue delivers harvest jobs to workers
type Queue interface {
	// Enqueue adds a job and returns its ID
	Enqueue(ctx context.Context, job Job) (string, error)

	// Read waits up to block for at most count new jobs
	Read(ctx context.Context, count int, block time.Duration) ([]Job, error)

	// Ack marks a job as handled
	Ack(ctx context.Context, job Job) error

	// Close closes the queue connection
	Close() error
}

// RedisQueue implements Queue on a Redis stream read through a consumer group
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string

	mu      sync.Mutex
	backlog bool
}

// NewRedisQueue creates a new Redis stream queue. The consumer name must stay the same
// across restarts so entries delivered before a crash are read again; empty picks a random one.
func NewRedisQueue(addr string, db int, stream, group, consumer string) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if consumer == "" {
		consumer = "harvester-" + uuid.NewString()[:8]
	}

	return &RedisQueue{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		backlog:  true,
	}
}

// Consumer returns the consumer name used in the group
func (q *RedisQueue) Consumer() string {
	return q.consumer
}

// EnsureGroup creates the stream and consumer group when they do not exist yet
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Enqueue adds job to the stream, assigning an ID when it has none
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			FieldJobID:      job.ID,
			FieldURL:        job.URL,
			FieldReplyTo:    job.ReplyTo,
			FieldEnqueuedAt: job.EnqueuedAt.Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// Read returns the next jobs of the group. Entries this consumer received but never
// acknowledged are returned first, then new ones. A block timeout yields no jobs and no error.
func (q *RedisQueue) Read(ctx context.Context, count int, block time.Duration) ([]Job, error) {
	q.mu.Lock()
	backlog := q.backlog
	q.mu.Unlock()

	if backlog {
		jobs, err := q.read(ctx, "0", count, -1)
		if err != nil {
			return nil, err
		}
		if len(jobs) > 0 {
			return jobs, nil
		}
		q.mu.Lock()
		q.backlog = false
		q.mu.Unlock()
	}

	return q.read(ctx, ">", count, block)
}

// read runs XREADGROUP from id; a negative block does not block at all
func (q *RedisQueue) read(ctx context.Context, id string, count int, block time.Duration) ([]Job, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, id},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, s := range streams {
		for _, msg := range s.Messages {
			jobs = append(jobs, parseJob(msg))
		}
	}
	return jobs, nil
}

// Ack acknowledges the stream entry of job
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if job.entryID == "" {
		return fmt.Errorf("job %s was not read from a stream", job.ID)
	}
	return q.client.XAck(ctx, q.stream, q.group, job.entryID).Err()
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func parseJob(msg redis.XMessage) Job {
	job := Job{
		ID:      stringValue(msg.Values, FieldJobID),
		URL:     strings.TrimSpace(stringValue(msg.Values, FieldURL)),
		ReplyTo: stringValue(msg.Values, FieldReplyTo),
		entryID: msg.ID,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if at, err := time.Parse(time.RFC3339, stringValue(msg.Values, FieldEnqueuedAt)); err == nil {
		job.EnqueuedAt = at
	}
	return job
}

func stringValue(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
