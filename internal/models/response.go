package models

import "time"

type CreateFusionJobResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

type JobStatusResponse struct {
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	StatusDetail string    `json:"statusDetail,omitempty"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type JobResultResponse struct {
	JobID      string                 `json:"jobId"`
	Status     JobStatus              `json:"status"`
	ResultURL  string                 `json:"resultUrl"`
	Candidates []Candidate            `json:"candidates"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

type JobPendingResponse struct {
	Message  string    `json:"message"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type JobSummary struct {
	JobID     string    `json:"jobId"`
	Category  Category  `json:"category"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	ResultURL string    `json:"resultUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}
