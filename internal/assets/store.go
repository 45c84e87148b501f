// Package assets stores and fetches the images a fusion job produces.
package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Store persists bytes under a path and returns a stable public URL.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// UploadBase64 decodes a base64 payload (raw or data URI) and uploads it.
func UploadBase64(ctx context.Context, store Store, path, payload string) (string, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return "", err
	}
	return store.Upload(ctx, path, data, "image/png")
}

// DecodeBase64 accepts either a bare base64 string or a data URI.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data uri")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty base64 payload")
	}
	return data, nil
}

// Storage layout for a job.

func MaskPath(jobID uuid.UUID, name string) string {
	return fmt.Sprintf("fusion/%s/masks/%s.png", jobID, name)
}

func EdgePath(jobID uuid.UUID) string {
	return fmt.Sprintf("fusion/%s/edge/edge.png", jobID)
}

func CandidatePath(jobID uuid.UUID, kind string, ts int64) string {
	return fmt.Sprintf("fusion/%s/candidates/%s-%d.png", jobID, kind, ts)
}

func FallbackPath(jobID uuid.UUID, kind string, ts int64) string {
	return fmt.Sprintf("fusion/%s/fallback/%s-%d.png", jobID, kind, ts)
}

func UploadPath(batch, slot, ext string) string {
	return fmt.Sprintf("fusion/uploads/%s/%s%s", batch, slot, ext)
}
