package supabase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/models"
)

const jobsTable = "fusion_jobs"

// RESTJobStore keeps jobs through PostgREST. Partial updates go through the
// merge_fusion_job function so the merge happens in one statement.
//
// The postgrest client does not take a context, so ctx is only checked
// before each request.
type RESTJobStore struct {
	client *Client
}

func NewRESTJobStore(client *Client) *RESTJobStore {
	return &RESTJobStore{client: client}
}

func (s *RESTJobStore) Create(ctx context.Context, job *models.FusionJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := newJobRow(job)
	if err != nil {
		return err
	}

	var created []jobRow
	_, err = s.client.Supabase.From(jobsTable).
		Insert(insertBody(row), false, "", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if len(created) > 0 {
		job.CreatedAt = created[0].CreatedAt
		job.UpdatedAt = created[0].UpdatedAt
	}
	return nil
}

func (s *RESTJobStore) Get(ctx context.Context, id uuid.UUID) (*models.FusionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []jobRow
	_, err := s.client.Supabase.From(jobsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(rows) == 0 {
		return nil, jobstore.ErrNotFound
	}
	return rows[0].toModel()
}

func (s *RESTJobStore) Update(ctx context.Context, id uuid.UUID, update models.FusionJobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := s.client.Supabase.Rpc("merge_fusion_job", "", map[string]interface{}{
		"p_id":    id.String(),
		"p_patch": updatePatch(update),
	})
	affected, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return fmt.Errorf("failed to update job: unexpected rpc response %q", body)
	}
	if affected == 0 {
		// Either terminal (ignored) or missing.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *RESTJobStore) List(ctx context.Context, userID string, limit int) ([]*models.FusionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []jobRow
	_, err := s.client.Supabase.From(jobsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", nil).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*models.FusionJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// insertBody drops the timestamp fields so the database defaults apply.
func insertBody(row *jobRow) map[string]interface{} {
	return map[string]interface{}{
		"id":                  row.ID.String(),
		"user_id":             row.UserID,
		"category":            row.Category,
		"model_image_url":     row.ModelImageURL,
		"reference_model_url": row.ReferenceModelURL,
		"fabric_top_url":      row.FabricTopURL,
		"fabric_bottom_url":   row.FabricBottomURL,
		"strength":            row.Strength,
		"user_consent":        row.UserConsent,
		"status":              row.Status,
		"status_detail":       row.StatusDetail,
		"progress":            row.Progress,
		"metadata":            row.Metadata,
		"candidates":          row.Candidates,
	}
}
