package queue

import (
	"context"
	"sync"

	"fabric-fusion-backend/internal/logger"
)

// LocalQueue is an in-process queue used when Redis is not configured. Jobs
// pending in it are lost on restart.
type LocalQueue struct {
	ch  chan Message
	log *logger.Logger

	dlqMu sync.Mutex
	dlq   []Message
}

func NewLocalQueue(bufferSize int, log *logger.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LocalQueue{
		ch:  make(chan Message, bufferSize),
		log: log,
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

// Consume may be called from several goroutines; each message goes to one of
// them.
func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if err := handler(ctx, message); err != nil {
				q.dlqMu.Lock()
				q.dlq = append(q.dlq, message)
				q.dlqMu.Unlock()
				q.log.Warn("Local queue moved message to DLQ", "job_id", message.JobID, "error", err)
			}
		}
	}
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

func (q *LocalQueue) Close() error { return nil }
