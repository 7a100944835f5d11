// Package queue provides the work-queue transport between intake and the
// processing worker.
package queue

import (
	"context"
	"encoding/json"
)

// Message is one enqueued payload. ID identifies the message for ack and
// redelivery bookkeeping; Body is the opaque intake payload, verbatim.
type Message struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Delivery is the envelope handed to one worker invocation. The pipeline
// processes exactly one message per invocation and the worker rejects any
// other count.
type Delivery struct {
	Messages []Message
}

// Queue is a work queue with at-least-once delivery. A received message
// stays invisible to other consumers until it is acked, dead-lettered, or
// its visibility timeout lapses and it is redelivered.
//
// MemoryQueue weakens this to at-most-once; it exists for development and
// tests only.
type Queue interface {
	// Enqueue adds one opaque payload to the queue.
	Enqueue(ctx context.Context, body []byte) error

	// Receive blocks until a message is available or ctx is done, returning
	// a delivery carrying exactly one message.
	Receive(ctx context.Context) (*Delivery, error)

	// Ack removes a processed message permanently.
	Ack(ctx context.Context, m Message) error

	// DeadLetter parks a message that can never be processed.
	DeadLetter(ctx context.Context, m Message) error
}
