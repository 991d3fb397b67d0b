// Package queue abstracts the batched work queue the ingestion worker
// drains. Dequeue is a lease, not a destructive read: a dequeued message
// stays invisible to other consumers for the visibility timeout and only
// an explicit Archive removes it. Messages never archived become visible
// again and are redelivered (at-least-once).
package queue

import "context"

// Message is one leased queue entry.
type Message struct {
	// ID is the provider-assigned message identity, stable across
	// redeliveries.
	ID string
	// Data is the opaque payload.
	Data []byte

	ack func() error
}

// NewMessage builds a Message with the given archive hook. Implementations
// and test fakes use it; the hook runs when the queue archives the message.
func NewMessage(id string, data []byte, ack func() error) Message {
	return Message{ID: id, Data: data, ack: ack}
}

// Queue is the dequeue/archive surface of the work queue.
type Queue interface {
	// Dequeue leases up to max messages. An empty queue returns an empty
	// slice and no error; errors mean the read itself failed and the
	// caller should abort the batch.
	Dequeue(ctx context.Context, max int) ([]Message, error)

	// Archive permanently removes a previously dequeued message.
	Archive(ctx context.Context, m Message) error
}
