package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is a bounded in-process queue for development and tests. It is
// at-most-once: an unacked message is gone after Receive and a crash loses
// whatever was buffered.
type MemoryQueue struct {
	messages chan Message

	mu   sync.Mutex
	dead []Message
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{messages: make(chan Message, size)}
}

// Enqueue adds the payload to the queue. Returns an error if the queue is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, body []byte) error {
	m := Message{ID: uuid.NewString(), Body: append([]byte(nil), body...)}
	select {
	case q.messages <- m:
		return nil
	default:
		return fmt.Errorf("queue full: cannot enqueue message %s", m.ID)
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-q.messages:
		return &Delivery{Messages: []Message{m}}, nil
	}
}

// Ack is a no-op: a received message is already off the channel.
func (q *MemoryQueue) Ack(ctx context.Context, m Message) error { return nil }

func (q *MemoryQueue) DeadLetter(ctx context.Context, m Message) error {
	q.mu.Lock()
	q.dead = append(q.dead, m)
	q.mu.Unlock()
	return nil
}

// DeadLetters returns the messages parked by DeadLetter.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}

// Len returns the number of waiting messages.
func (q *MemoryQueue) Len() int { return len(q.messages) }
