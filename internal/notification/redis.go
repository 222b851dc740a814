package notification

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultStream is the Redis stream receiving contract notifications.
	DefaultStream = "hotledger:notifications:v1"
	streamMaxLen  = 100_000
)

// RedisNotifier appends notifications to a capped Redis stream so that
// downstream consumers can follow them with XREAD.
type RedisNotifier struct {
	client *redis.Client
	stream string
}

// NewRedisNotifier constructs a stream notifier. An empty stream uses DefaultStream.
func NewRedisNotifier(client *redis.Client, stream string) *RedisNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{client: client, stream: stream}
}

// Send appends message to the stream.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"kind":        message.Kind,
			"destination": message.Destination,
			"body":        message.Body,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}
