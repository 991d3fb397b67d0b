package queue

import (
	"context"
	"testing"
	"time"
)

// TestMemoryQueue_DequeueLease verifies that dequeued messages are
// invisible to subsequent dequeues until the visibility timeout elapses.
func TestMemoryQueue_DequeueLease(t *testing.T) {
	q := NewMemoryQueue(30 * time.Second)
	current := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return current }
	ctx := context.Background()

	q.Enqueue([]byte(`{"id":1}`))

	first, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("Dequeue() len = %d, want 1", len(first))
	}

	// Leased: a concurrent consumer sees nothing.
	second, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("Dequeue() during lease len = %d, want 0", len(second))
	}

	// Lease expired without archive: redelivered.
	current = current.Add(31 * time.Second)
	third, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(third) != 1 {
		t.Fatalf("Dequeue() after lease expiry len = %d, want 1", len(third))
	}
	if third[0].ID != first[0].ID {
		t.Errorf("redelivered message id = %s, want %s", third[0].ID, first[0].ID)
	}
}

// TestMemoryQueue_Archive verifies that archiving permanently removes a
// message even after its lease would have expired.
func TestMemoryQueue_Archive(t *testing.T) {
	q := NewMemoryQueue(30 * time.Second)
	current := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return current }
	ctx := context.Background()

	q.Enqueue([]byte(`{"id":1}`))
	msgs, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if err := q.Archive(ctx, msgs[0]); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	current = current.Add(time.Minute)
	remaining, err := q.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Dequeue() after archive len = %d, want 0", len(remaining))
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

// TestMemoryQueue_BatchLimit verifies the max argument caps a dequeue.
func TestMemoryQueue_BatchLimit(t *testing.T) {
	q := NewMemoryQueue(30 * time.Second)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		q.Enqueue([]byte(`{}`))
	}
	msgs, err := q.Dequeue(ctx, 3)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("Dequeue() len = %d, want 3", len(msgs))
	}
}

// TestMemoryQueue_ArchiveForeignMessage verifies that a message not
// dequeued from this queue cannot be archived.
func TestMemoryQueue_ArchiveForeignMessage(t *testing.T) {
	q := NewMemoryQueue(30 * time.Second)
	if err := q.Archive(context.Background(), Message{ID: "foreign"}); err == nil {
		t.Error("Archive() of foreign message error = nil, want error")
	}
}
