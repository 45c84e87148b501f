package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/generation"
	"fabric-fusion-backend/internal/inference"
)

type scriptedModel struct {
	failures int
	calls    int
	remote   bool
}

func (m *scriptedModel) Predict(_ context.Context, modelID string, _ interface{}) (json.RawMessage, error) {
	m.calls++
	if m.calls <= m.failures {
		if m.remote {
			return nil, &inference.RemoteError{ModelID: modelID, Message: "busy"}
		}
		return nil, assert.AnError
	}
	return json.RawMessage(`"https://cdn/out.png"`), nil
}

func TestRun_SucceedsOnLastAttempt(t *testing.T) {
	model := &scriptedModel{failures: 2}
	client := generation.NewClient(model, time.Millisecond, nil)

	out, err := client.Run(context.Background(), "m", nil, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, model.calls)
	assert.JSONEq(t, `"https://cdn/out.png"`, string(out))
}

func TestRun_RemoteErrorCountsAsFailure(t *testing.T) {
	model := &scriptedModel{failures: 1, remote: true}
	client := generation.NewClient(model, time.Millisecond, nil)

	_, err := client.Run(context.Background(), "m", nil, 2)

	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
}

func TestRun_ExhaustedAfterExactlyMaxAttempts(t *testing.T) {
	model := &scriptedModel{failures: 100}
	client := generation.NewClient(model, time.Millisecond, nil)

	_, err := client.Run(context.Background(), "m", nil, 3)

	require.Error(t, err)
	assert.Equal(t, 3, model.calls)
	assert.True(t, errors.Is(err, generation.ErrAttemptsExhausted))
	assert.True(t, errors.Is(err, assert.AnError))
}

func TestRun_NoSleepAfterFinalAttempt(t *testing.T) {
	model := &scriptedModel{failures: 100}
	client := generation.NewClient(model, 200*time.Millisecond, nil)

	start := time.Now()
	_, err := client.Run(context.Background(), "m", nil, 1)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	model := &scriptedModel{failures: 100}
	client := generation.NewClient(model, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Run(ctx, "m", nil, 5)

	require.Error(t, err)
	assert.Equal(t, 1, model.calls)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
