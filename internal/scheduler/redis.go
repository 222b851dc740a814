package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list holding queued actions.
const DefaultRedisKey = "hotledger:actions:v1"

// RedisQueue keeps actions in a Redis list, pushed on the right and popped
// from the left.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on key; an empty key uses DefaultRedisKey.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, actions ...Action) error {
	if len(actions) == 0 {
		return nil
	}
	values := make([]any, 0, len(actions))
	for _, a := range actions {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode action %s: %w", a.ID, err)
		}
		values = append(values, b)
	}
	if err := q.client.RPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("push actions: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Action, bool, error) {
	b, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, fmt.Errorf("pop action: %w", err)
	}
	var a Action
	if err := json.Unmarshal(b, &a); err != nil {
		return Action{}, false, fmt.Errorf("decode action: %w", err)
	}
	return a, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
