// Package realtime publishes job progress so clients can follow a fusion job
// without polling.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/models"
)

// Event names.
const (
	EventProgress  = "job.progress"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
)

type JobEvent struct {
	Event   string                 `json:"event"`
	JobID   string                 `json:"jobId"`
	Payload map[string]interface{} `json:"payload"`
	SentAt  time.Time              `json:"sentAt"`
}

// Publisher delivers job events. Publishing is best effort; callers log
// errors and carry on.
type Publisher interface {
	Publish(ctx context.Context, event JobEvent) error
}

// JobChannel is the per-job channel name.
func JobChannel(jobID string) string {
	return fmt.Sprintf("fusion:job:%s", jobID)
}

func ProgressEvent(jobID uuid.UUID, status models.JobStatus, progress int, detail string) JobEvent {
	return JobEvent{
		Event: EventProgress,
		JobID: jobID.String(),
		Payload: map[string]interface{}{
			"status":       string(status),
			"progress":     progress,
			"statusDetail": detail,
		},
		SentAt: time.Now().UTC(),
	}
}

func CompletedEvent(jobID uuid.UUID, resultURL string, candidateCount int) JobEvent {
	return JobEvent{
		Event: EventCompleted,
		JobID: jobID.String(),
		Payload: map[string]interface{}{
			"status":     string(models.JobStatusCompleted),
			"progress":   100,
			"resultUrl":  resultURL,
			"candidates": candidateCount,
		},
		SentAt: time.Now().UTC(),
	}
}

func FailedEvent(jobID uuid.UUID, errorMsg string) JobEvent {
	return JobEvent{
		Event: EventFailed,
		JobID: jobID.String(),
		Payload: map[string]interface{}{
			"status": string(models.JobStatusFailed),
			"error":  errorMsg,
		},
		SentAt: time.Now().UTC(),
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, JobEvent) error { return nil }
