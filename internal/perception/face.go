package perception

import (
	"context"
	"encoding/json"
	"fmt"

	"fabric-fusion-backend/internal/inference"
)

type FaceResult struct {
	Detected bool
	// Mask is a PNG covering the detected faces. It may be nil even when a
	// face was detected.
	Mask []byte
}

type FaceGuard struct {
	runner   Runner
	fetcher  inference.Fetcher
	modelID  string
	attempts int
}

func NewFaceGuard(runner Runner, fetcher inference.Fetcher, modelID string, attempts int) *FaceGuard {
	return &FaceGuard{runner: runner, fetcher: fetcher, modelID: modelID, attempts: attemptsOrDefault(attempts)}
}

type faceOutput struct {
	FaceDetected      *bool             `json:"face_detected"`
	FaceDetectedCamel *bool             `json:"faceDetected"`
	Faces             []json.RawMessage `json:"faces"`
	Mask              json.RawMessage   `json:"mask"`
	FaceMask          json.RawMessage   `json:"face_mask"`
}

func (g *FaceGuard) Detect(ctx context.Context, imageURL string) (*FaceResult, error) {
	raw, err := g.runner.Run(ctx, g.modelID, map[string]interface{}{"image": imageURL}, g.attempts)
	if err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}

	var out faceOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("face detection: unexpected output: %w", err)
	}

	detected := len(out.Faces) > 0
	switch {
	case out.FaceDetected != nil:
		detected = *out.FaceDetected
	case out.FaceDetectedCamel != nil:
		detected = *out.FaceDetectedCamel
	}
	if !detected {
		return &FaceResult{Detected: false}, nil
	}

	maskRaw := out.FaceMask
	if len(maskRaw) == 0 {
		maskRaw = out.Mask
	}
	if len(maskRaw) == 0 || string(maskRaw) == "null" {
		return &FaceResult{Detected: true}, nil
	}
	mask, err := resolveImage(ctx, maskRaw, g.fetcher)
	if err != nil {
		return nil, fmt.Errorf("face mask: %w", err)
	}
	return &FaceResult{Detected: true, Mask: mask}, nil
}
