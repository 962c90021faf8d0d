package publisher

import (
	"context"
	"encoding/base64"

	errs "sjsage522/listingharvester/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using a Redis stream
type RedisPublisher struct {
	client          *redis.Client
	ctx             context.Context
	stream          string
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(ctx context.Context, addr string, db int, stream string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		ctx:             ctx,
		stream:          stream,
		streamMaxLength: streamMaxLength,
	}
}

// Publish publishes a message to the result stream
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	err := p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}).Err()
	if err != nil {
		return errs.NewPublisher(p.stream, "failed to publish result", err)
	}
	return nil
}

// TrimStreams trims the result stream to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	if err := p.client.XTrimMaxLen(p.ctx, p.stream, int64(p.streamMaxLength)).Err(); err != nil {
		return errs.NewPublisher(p.stream, "failed to trim stream", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
