package jobstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/models"
)

func newPendingJob(t *testing.T, store *jobstore.MemoryStore) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.Create(context.Background(), &models.FusionJob{
		ID:     id,
		Status: models.JobStatusPending,
	}))
	return id
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := jobstore.NewMemoryStore()
	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	store := jobstore.NewMemoryStore()
	err := store.Update(context.Background(), uuid.New(), models.FusionJobUpdate{})
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestMemoryStore_DuplicateCreate(t *testing.T) {
	store := jobstore.NewMemoryStore()
	id := newPendingJob(t, store)
	err := store.Create(context.Background(), &models.FusionJob{ID: id})
	assert.Error(t, err)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	id := newPendingJob(t, store)
	require.NoError(t, store.Update(ctx, id, models.FusionJobUpdate{
		Metadata: map[string]interface{}{"a": 1},
	}))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	job.Metadata["a"] = 2

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Metadata["a"])
}

func TestMemoryStore_TerminalJobIgnoresUpdates(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	id := newPendingJob(t, store)

	require.NoError(t, store.Update(ctx, id, models.FusionJobUpdate{
		Status:   models.StatusPtr(models.JobStatusFailed),
		Error:    models.StringPtr("boom"),
		Progress: models.IntPtr(30),
	}))
	require.NoError(t, store.Update(ctx, id, models.FusionJobUpdate{
		Status:   models.StatusPtr(models.JobStatusCompleted),
		Progress: models.IntPtr(100),
	}))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 30, job.Progress)
	assert.Equal(t, "boom", job.Error)
}

func TestMemoryStore_ConcurrentMetadataMerges(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	id := newPendingJob(t, store)

	keys := []string{"masks", "edgeMapUrl", "paletteTop", "prompts", "faceProtected"}
	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(k string, p int) {
			defer wg.Done()
			_ = store.Update(ctx, id, models.FusionJobUpdate{
				Progress: models.IntPtr(p),
				Metadata: map[string]interface{}{k: true},
			})
		}(k, (i+1)*10)
	}
	wg.Wait()

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, job.Metadata, len(keys))
	assert.Equal(t, 50, job.Progress)
}
