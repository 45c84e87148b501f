package supabase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/models"
)

// DatabaseClient is the Postgres backed job store.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

const jobColumns = `id, user_id, category, model_image_url, reference_model_url,
	fabric_top_url, fabric_bottom_url, strength, user_consent, status, status_detail,
	progress, metadata, candidates, result_url, error_message, created_at, updated_at`

func (d *DatabaseClient) Create(ctx context.Context, job *models.FusionJob) error {
	row, err := newJobRow(job)
	if err != nil {
		return err
	}

	err = d.db.QueryRowContext(ctx, `
		INSERT INTO fusion_jobs (id, user_id, category, model_image_url, reference_model_url,
			fabric_top_url, fabric_bottom_url, strength, user_consent, status, status_detail,
			progress, metadata, candidates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, row.ID, row.UserID, row.Category, row.ModelImageURL, row.ReferenceModelURL,
		row.FabricTopURL, row.FabricBottomURL, row.Strength, row.UserConsent, row.Status,
		row.StatusDetail, row.Progress, string(row.Metadata), string(row.Candidates),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (d *DatabaseClient) Get(ctx context.Context, id uuid.UUID) (*models.FusionJob, error) {
	var (
		row        jobRow
		metadata   []byte
		candidates []byte
	)
	err := d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM fusion_jobs WHERE id = $1`, id).Scan(
		&row.ID, &row.UserID, &row.Category, &row.ModelImageURL, &row.ReferenceModelURL,
		&row.FabricTopURL, &row.FabricBottomURL, &row.Strength, &row.UserConsent, &row.Status,
		&row.StatusDetail, &row.Progress, &metadata, &candidates, &row.ResultURL,
		&row.ErrorMessage, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	row.Metadata = metadata
	row.Candidates = candidates
	return row.toModel()
}

func (d *DatabaseClient) Update(ctx context.Context, id uuid.UUID, update models.FusionJobUpdate) error {
	var (
		status, detail, resultURL, errMsg sql.NullString
		progress                          sql.NullInt64
		candidates                        interface{}
	)
	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}
	if update.StatusDetail != nil {
		detail = sql.NullString{String: *update.StatusDetail, Valid: true}
	}
	if update.Progress != nil {
		progress = sql.NullInt64{Int64: int64(*update.Progress), Valid: true}
	}
	if update.ResultURL != nil {
		resultURL = sql.NullString{String: *update.ResultURL, Valid: true}
	}
	if update.Error != nil {
		errMsg = sql.NullString{String: *update.Error, Valid: true}
	}

	metadata := "{}"
	if len(update.Metadata) > 0 {
		b, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(b)
	}
	if update.Candidates != nil {
		b, err := json.Marshal(update.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode candidates: %w", err)
		}
		candidates = string(b)
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE fusion_jobs SET
			status        = COALESCE($2, status),
			status_detail = COALESCE($3, status_detail),
			progress      = GREATEST(progress, COALESCE($4, progress)),
			metadata      = metadata || $5::jsonb,
			candidates    = COALESCE($6::jsonb, candidates),
			result_url    = COALESCE($7, result_url),
			error_message = COALESCE($8, error_message),
			updated_at    = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, id, status, detail, progress, metadata, candidates, resultURL, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return d.ensureExists(ctx, id)
	}
	return nil
}

// List returns a user's jobs, newest first.
func (d *DatabaseClient) List(ctx context.Context, userID string, limit int) ([]*models.FusionJob, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM fusion_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.FusionJob
	for rows.Next() {
		var (
			row        jobRow
			metadata   []byte
			candidates []byte
		)
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.Category, &row.ModelImageURL, &row.ReferenceModelURL,
			&row.FabricTopURL, &row.FabricBottomURL, &row.Strength, &row.UserConsent, &row.Status,
			&row.StatusDetail, &row.Progress, &metadata, &candidates, &row.ResultURL,
			&row.ErrorMessage, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		row.Metadata = metadata
		row.Candidates = candidates
		job, err := row.toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (d *DatabaseClient) ensureExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM fusion_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return jobstore.ErrNotFound
	}
	return nil
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
