package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueue_DeliversEachMessageOnce(t *testing.T) {
	q := NewLocalQueue(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(3)
	handler := func(_ context.Context, m Message) error {
		mu.Lock()
		seen = append(seen, m.JobID)
		mu.Unlock()
		wg.Done()
		return nil
	}
	for i := 0; i < 2; i++ {
		go func() { _ = q.Consume(ctx, handler) }()
	}

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, Message{JobID: id, RequestedAt: time.Now()}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 0, q.DLQSize())
}

func TestLocalQueue_FailedMessageGoesToDLQ(t *testing.T) {
	q := NewLocalQueue(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(context.Context, Message) error {
			defer close(done)
			return errors.New("boom")
		})
	}()

	require.NoError(t, q.Enqueue(ctx, Message{JobID: "x"}))
	<-done
	cancel()

	assert.Eventually(t, func() bool { return q.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLocalQueue_EnqueueRespectsContext(t *testing.T) {
	q := NewLocalQueue(1, nil)
	require.NoError(t, q.Enqueue(context.Background(), Message{JobID: "fills-buffer"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, Message{JobID: "blocked"}), context.Canceled)
}

func TestLocalQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewLocalQueue(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Consume(ctx, func(context.Context, Message) error { return nil }), context.Canceled)
}

func TestParseStreamMessage(t *testing.T) {
	requested := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"job_id":       "7b0a7c1e-0000-4000-8000-000000000001",
		"requested_at": requested.Format(time.RFC3339Nano),
	}}

	message, err := parseStreamMessage(item)
	require.NoError(t, err)
	assert.Equal(t, "7b0a7c1e-0000-4000-8000-000000000001", message.JobID)
	assert.True(t, requested.Equal(message.RequestedAt))
}

func TestParseStreamMessage_Invalid(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"missing job":  {"requested_at": time.Now().Format(time.RFC3339Nano)},
		"empty job":    {"job_id": "", "requested_at": time.Now().Format(time.RFC3339Nano)},
		"bad time":     {"job_id": "a", "requested_at": "yesterday"},
		"missing time": {"job_id": "a"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: values})
			assert.Error(t, err)
		})
	}
}

func TestNewStreamsQueue_RequiresAddr(t *testing.T) {
	_, err := NewStreamsQueue(context.Background(), StreamsConfig{}, nil)
	assert.Error(t, err)
}

func TestStreamsConfig_Defaults(t *testing.T) {
	cfg := StreamsConfig{Addr: "localhost:6379"}.withDefaults()
	assert.Equal(t, "fusion_jobs", cfg.Stream)
	assert.Equal(t, "fusion_workers", cfg.Group)
	assert.NotEmpty(t, cfg.Consumer)

	custom := StreamsConfig{Stream: "jobs", Group: "g", Consumer: "w1"}.withDefaults()
	assert.Equal(t, StreamsConfig{Stream: "jobs", Group: "g", Consumer: "w1"}, custom)
}
