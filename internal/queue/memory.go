package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryQueue implements Queue in process, with real visibility-timeout
// semantics. Used in development and as the test fake.
type MemoryQueue struct {
	mu         sync.Mutex
	visibility time.Duration
	seq        int64
	items      map[string]*memoryItem
	now        func() time.Time
}

type memoryItem struct {
	id             string
	data           []byte
	invisibleUntil time.Time
}

// NewMemoryQueue creates a MemoryQueue with the given visibility timeout.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibility: visibility,
		items:      make(map[string]*memoryItem),
		now:        time.Now,
	}
}

// Enqueue adds a payload and returns its assigned message id.
func (q *MemoryQueue) Enqueue(data []byte) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := strconv.FormatInt(q.seq, 10)
	q.items[id] = &memoryItem{id: id, data: data}
	return id
}

// Dequeue implements Queue.Dequeue. Leased messages become invisible for
// the visibility window.
func (q *MemoryQueue) Dequeue(ctx context.Context, max int) ([]Message, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var out []Message
	for _, item := range q.items {
		if len(out) >= max {
			break
		}
		if item.invisibleUntil.After(now) {
			continue
		}
		item.invisibleUntil = now.Add(q.visibility)
		id := item.id
		out = append(out, NewMessage(id, item.data, func() error {
			q.mu.Lock()
			defer q.mu.Unlock()
			delete(q.items, id)
			return nil
		}))
	}
	return out, nil
}

// Archive implements Queue.Archive.
func (q *MemoryQueue) Archive(ctx context.Context, m Message) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.ack == nil {
		return fmt.Errorf("message %s was not dequeued from this queue", m.ID)
	}
	return m.ack()
}

// Len reports how many messages remain (visible or leased).
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
