package supabase

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/models"
)

func TestJobRow_RoundTripsCandidatesAndMetadata(t *testing.T) {
	job := &models.FusionJob{
		ID:       uuid.New(),
		UserID:   "user-1",
		Category: models.CategorySaree,
		Status:   models.JobStatusCompleted,
		Progress: 100,
		Metadata: map[string]interface{}{"faceProtected": true},
		Candidates: []models.Candidate{
			{URL: "https://x/final.png", Mode: models.ModeHybrid, Meta: map[string]interface{}{"mode": "top-then-bottom"}},
		},
		ResultURL: "https://x/final.png",
	}

	row, err := newJobRow(job)
	require.NoError(t, err)

	back, err := row.toModel()
	require.NoError(t, err)
	assert.Equal(t, job.ID, back.ID)
	assert.Equal(t, true, back.Metadata["faceProtected"])
	require.Len(t, back.Candidates, 1)
	assert.Equal(t, "https://x/final.png", back.Candidates[0].URL)
}

func TestJobRow_NilCollectionsEncodeAsEmpty(t *testing.T) {
	row, err := newJobRow(&models.FusionJob{ID: uuid.New()})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(row.Metadata))
	assert.JSONEq(t, `[]`, string(row.Candidates))
}

func TestUpdatePatch_OnlySetFields(t *testing.T) {
	patch := updatePatch(models.FusionJobUpdate{
		Progress: models.IntPtr(45),
		Metadata: map[string]interface{}{"edgeMapUrl": "u"},
	})

	assert.Equal(t, 45, patch["progress"])
	assert.Contains(t, patch, "metadata")
	assert.NotContains(t, patch, "status")
	assert.NotContains(t, patch, "candidates")
	assert.NotContains(t, patch, "error_message")
}
