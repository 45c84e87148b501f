package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/queue"
	"fabric-fusion-backend/internal/worker"
)

type fakeRunner struct {
	mu      sync.Mutex
	seen    []uuid.UUID
	active  int
	maxSeen int
	fail    bool
}

func (r *fakeRunner) Process(_ context.Context, id uuid.UUID) ([]models.Candidate, error) {
	r.mu.Lock()
	r.seen = append(r.seen, id)
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	if r.fail {
		return nil, errors.New("pipeline failed")
	}
	return []models.Candidate{{URL: "https://cdn.test/out.png"}}, nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestProcessor_RunsQueuedJobsConcurrently(t *testing.T) {
	q := queue.NewLocalQueue(16, nil)
	runner := &fakeRunner{}
	p := worker.NewProcessor(q, runner, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(ctx, queue.Message{JobID: uuid.NewString(), RequestedAt: time.Now()}))
	}

	assert.Eventually(t, func() bool { return runner.count() == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.LessOrEqual(t, runner.maxSeen, 2)
}

func TestProcessor_BadJobIDGoesToDLQ(t *testing.T) {
	q := queue.NewLocalQueue(4, nil)
	runner := &fakeRunner{}
	p := worker.NewProcessor(q, runner, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, queue.Message{JobID: "not-a-uuid"}))
	assert.Eventually(t, func() bool { return q.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, runner.count())
}

func TestProcessor_FailedJobGoesToDLQ(t *testing.T) {
	q := queue.NewLocalQueue(4, nil)
	runner := &fakeRunner{fail: true}
	p := worker.NewProcessor(q, runner, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, queue.Message{JobID: uuid.NewString()}))
	assert.Eventually(t, func() bool { return q.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
}
