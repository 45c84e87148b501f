package supabase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/models"
)

// jobRow mirrors the fusion_jobs table. Used by both job stores.
type jobRow struct {
	ID                uuid.UUID       `json:"id"`
	UserID            string          `json:"user_id"`
	Category          string          `json:"category"`
	ModelImageURL     string          `json:"model_image_url"`
	ReferenceModelURL string          `json:"reference_model_url"`
	FabricTopURL      string          `json:"fabric_top_url"`
	FabricBottomURL   string          `json:"fabric_bottom_url"`
	Strength          float64         `json:"strength"`
	UserConsent       bool            `json:"user_consent"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	Progress          int             `json:"progress"`
	Metadata          json.RawMessage `json:"metadata"`
	Candidates        json.RawMessage `json:"candidates"`
	ResultURL         string          `json:"result_url"`
	ErrorMessage      string          `json:"error_message"`
	CreatedAt         time.Time       `json:"created_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
}

func newJobRow(job *models.FusionJob) (*jobRow, error) {
	metadata := job.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	candidates := job.Candidates
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}

	return &jobRow{
		ID:                job.ID,
		UserID:            job.UserID,
		Category:          string(job.Category),
		ModelImageURL:     job.ModelImageURL,
		ReferenceModelURL: job.ReferenceModelURL,
		FabricTopURL:      job.FabricTopURL,
		FabricBottomURL:   job.FabricBottomURL,
		Strength:          job.Strength,
		UserConsent:       job.UserConsent,
		Status:            string(job.Status),
		StatusDetail:      job.StatusDetail,
		Progress:          job.Progress,
		Metadata:          metadataJSON,
		Candidates:        candidatesJSON,
		ResultURL:         job.ResultURL,
		ErrorMessage:      job.Error,
	}, nil
}

func (r *jobRow) toModel() (*models.FusionJob, error) {
	job := &models.FusionJob{
		ID:                r.ID,
		UserID:            r.UserID,
		Category:          models.Category(r.Category),
		ModelImageURL:     r.ModelImageURL,
		ReferenceModelURL: r.ReferenceModelURL,
		FabricTopURL:      r.FabricTopURL,
		FabricBottomURL:   r.FabricBottomURL,
		Strength:          r.Strength,
		UserConsent:       r.UserConsent,
		Status:            models.JobStatus(r.Status),
		StatusDetail:      r.StatusDetail,
		Progress:          r.Progress,
		ResultURL:         r.ResultURL,
		Error:             r.ErrorMessage,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if len(r.Candidates) > 0 {
		if err := json.Unmarshal(r.Candidates, &job.Candidates); err != nil {
			return nil, fmt.Errorf("failed to decode candidates: %w", err)
		}
	}
	return job, nil
}

// updatePatch is the JSON body understood by merge_fusion_job.
func updatePatch(u models.FusionJobUpdate) map[string]interface{} {
	patch := map[string]interface{}{}
	if u.Status != nil {
		patch["status"] = string(*u.Status)
	}
	if u.StatusDetail != nil {
		patch["status_detail"] = *u.StatusDetail
	}
	if u.Progress != nil {
		patch["progress"] = *u.Progress
	}
	if len(u.Metadata) > 0 {
		patch["metadata"] = u.Metadata
	}
	if u.Candidates != nil {
		patch["candidates"] = u.Candidates
	}
	if u.ResultURL != nil {
		patch["result_url"] = *u.ResultURL
	}
	if u.Error != nil {
		patch["error_message"] = *u.Error
	}
	return patch
}
