package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/models"
)

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.FusionJob
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*models.FusionJob),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *models.FusionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	stored := cloneJob(job)
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.jobs[job.ID] = stored
	job.CreatedAt, job.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.FusionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, update models.FusionJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	update.Apply(job, s.now())
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID string, limit int) ([]*models.FusionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*models.FusionJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func cloneJob(job *models.FusionJob) *models.FusionJob {
	c := *job
	if job.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(job.Metadata))
		for k, v := range job.Metadata {
			c.Metadata[k] = v
		}
	}
	if job.Candidates != nil {
		c.Candidates = append([]models.Candidate(nil), job.Candidates...)
	}
	return &c
}
