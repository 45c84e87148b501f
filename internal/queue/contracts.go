// Package queue hands submitted fusion jobs to the workers.
package queue

import (
	"context"
	"time"
)

// Message names a job to process. The job record itself lives in the job
// store.
type Message struct {
	JobID       string
	RequestedAt time.Time
}

// Handler processes one message. A returned error moves the message to the
// dead-letter list; messages are never redelivered.
type Handler func(ctx context.Context, message Message) error

type Producer interface {
	Enqueue(ctx context.Context, message Message) error
}

type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

type Queue interface {
	Producer
	Consumer
	Close() error
}
