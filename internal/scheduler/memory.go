package scheduler

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue useful for tests and development.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Action
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, actions ...Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, actions...)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (Action, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Action{}, false, nil
	}
	a := q.pending[0]
	q.pending[0] = Action{}
	q.pending = q.pending[1:]
	return a, true, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}
