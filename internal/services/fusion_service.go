package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/queue"
)

var (
	ErrInvalidJob    = errors.New("invalid fusion job")
	ErrInvalidUpload = errors.New("invalid upload")
)

// MaxUploadBytes is the per-file limit for uploaded inputs.
const MaxUploadBytes = 10 << 20

var uploadContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// FusionService validates and enqueues fusion jobs and answers job queries
// scoped to their owner.
type FusionService struct {
	store    jobstore.Store
	producer queue.Producer
	assets   assets.Store
	log      *logger.Logger
	now      func() time.Time
}

func NewFusionService(store jobstore.Store, producer queue.Producer, assetStore assets.Store, log *logger.Logger) *FusionService {
	if log == nil {
		log = logger.Nop()
	}
	return &FusionService{
		store:    store,
		producer: producer,
		assets:   assetStore,
		log:      log.With("service", "FusionService"),
		now:      time.Now,
	}
}

// Submit creates a pending job owned by userID and queues it.
func (s *FusionService) Submit(ctx context.Context, userID string, req models.CreateFusionJobRequest) (*models.FusionJob, error) {
	job, err := newJob(userID, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.producer.Enqueue(ctx, queue.Message{JobID: job.ID.String(), RequestedAt: s.now().UTC()}); err != nil {
		msg := "failed to queue job"
		_ = s.store.Update(context.WithoutCancel(ctx), job.ID, models.FusionJobUpdate{
			Status: models.StatusPtr(models.JobStatusFailed),
			Error:  &msg,
		})
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.log.Info("Fusion job submitted", "job_id", job.ID, "user_id", userID, "category", job.Category)
	return job, nil
}

func newJob(userID string, req models.CreateFusionJobRequest) (*models.FusionJob, error) {
	category, ok := models.ParseCategory(req.Category)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidJob, req.Category)
	}

	for name, ref := range map[string]string{
		"modelImageUrl":     req.ModelImageURL,
		"referenceModelUrl": req.ReferenceModelURL,
		"fabricTopUrl":      req.FabricTopURL,
		"fabricBottomUrl":   req.FabricBottomURL,
	} {
		if ref != "" && !validImageRef(ref) {
			return nil, fmt.Errorf("%w: %s is not an http(s) or data URL", ErrInvalidJob, name)
		}
	}
	if req.ModelImageURL == "" && req.ReferenceModelURL == "" {
		return nil, fmt.Errorf("%w: a model image is required", ErrInvalidJob)
	}
	if req.FabricTopURL == "" && req.FabricBottomURL == "" {
		return nil, fmt.Errorf("%w: at least one fabric image is required", ErrInvalidJob)
	}

	var strength float64
	if req.Strength != nil {
		strength = *req.Strength
		if strength <= 0 || strength > 1 {
			return nil, fmt.Errorf("%w: strength must be in (0, 1]", ErrInvalidJob)
		}
	}

	return &models.FusionJob{
		ID:                uuid.New(),
		UserID:            userID,
		Category:          category,
		ModelImageURL:     req.ModelImageURL,
		ReferenceModelURL: req.ReferenceModelURL,
		FabricTopURL:      req.FabricTopURL,
		FabricBottomURL:   req.FabricBottomURL,
		Strength:          strength,
		UserConsent:       req.UserConsent,
		Status:            models.JobStatusPending,
		StatusDetail:      "queued",
		Metadata:          map[string]interface{}{},
	}, nil
}

func validImageRef(ref string) bool {
	if strings.HasPrefix(ref, "data:image/") {
		return true
	}
	u, err := url.ParseRequestURI(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Get returns the job only to its owner. Other users see ErrNotFound.
func (s *FusionService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.FusionJob, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, jobstore.ErrNotFound
	}
	return job, nil
}

func (s *FusionService) List(ctx context.Context, userID string, limit int) ([]*models.FusionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.List(ctx, userID, limit)
}

// UploadInput stores one uploaded input image and returns its public URL.
func (s *FusionService) UploadInput(ctx context.Context, batch, slot, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidUpload, slot)
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("%w: %s exceeds %d MB", ErrInvalidUpload, slot, MaxUploadBytes>>20)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := uploadContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s must be png, jpg, jpeg or webp", ErrInvalidUpload, slot)
	}

	publicURL, err := s.assets.Upload(ctx, assets.UploadPath(batch, slot, ext), data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", slot, err)
	}
	return publicURL, nil
}

// UploadBatch is the key grouping the files of one upload request. It is
// unique per request so concurrent uploads never share a path.
func (s *FusionService) UploadBatch() string {
	return uuid.NewString()
}
