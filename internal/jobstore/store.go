// Package jobstore defines the durable record of fusion jobs and an in-memory
// implementation of it.
package jobstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/models"
)

var ErrNotFound = errors.New("job not found")

// Store persists fusion jobs. Update must be an atomic partial merge: nil
// fields untouched, metadata merged per key, progress never decreasing, and
// updates to a completed or failed job ignored.
type Store interface {
	Create(ctx context.Context, job *models.FusionJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.FusionJob, error)
	Update(ctx context.Context, id uuid.UUID, update models.FusionJobUpdate) error
	List(ctx context.Context, userID string, limit int) ([]*models.FusionJob, error)
}
