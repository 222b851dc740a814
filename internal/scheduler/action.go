package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hotchain/hotledger/internal/token"
)

// Action is a queued contract invocation.
type Action struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Authority  string          `json:"authority"`
	Args       json.RawMessage `json:"args,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewAction encodes args and stamps a fresh id.
func NewAction(name, authority string, args any) (Action, error) {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return Action{}, fmt.Errorf("encode %s args: %w", name, err)
		}
		raw = b
	}
	return Action{
		ID:         uuid.New(),
		Name:       name,
		Authority:  authority,
		Args:       raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Queue is a FIFO of pending actions.
type Queue interface {
	Push(ctx context.Context, actions ...Action) error
	// Pop returns false when the queue is empty.
	Pop(ctx context.Context) (Action, bool, error)
	Len(ctx context.Context) (int64, error)
}

// QueueScheduler hands a contract's deferred actions to a queue.
type QueueScheduler struct {
	queue Queue
}

// NewQueueScheduler wraps queue as a token.Scheduler.
func NewQueueScheduler(queue Queue) *QueueScheduler {
	return &QueueScheduler{queue: queue}
}

// Schedule encodes and enqueues deferred actions in order.
func (s *QueueScheduler) Schedule(ctx context.Context, deferred ...token.Deferred) error {
	actions := make([]Action, 0, len(deferred))
	for _, d := range deferred {
		a, err := NewAction(d.Name, d.Authority, d.Args)
		if err != nil {
			return err
		}
		actions = append(actions, a)
	}
	return s.queue.Push(ctx, actions...)
}
