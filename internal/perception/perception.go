// Package perception wraps the analysis capabilities run before generation:
// face protection, garment segmentation, edge maps and fabric features.
package perception

import (
	"context"
	"encoding/json"

	"fabric-fusion-backend/internal/inference"
)

// Runner calls a hosted model with bounded retry.
type Runner interface {
	Run(ctx context.Context, modelID string, payload interface{}, maxAttempts int) (json.RawMessage, error)
}

// DefaultAttempts is used by adapters built with attempts <= 0.
const DefaultAttempts = 3

func attemptsOrDefault(n int) int {
	if n <= 0 {
		return DefaultAttempts
	}
	return n
}

// resolveImage turns a model output into bytes.
func resolveImage(ctx context.Context, raw json.RawMessage, fetcher inference.Fetcher) ([]byte, error) {
	img, err := inference.NormalizeImage(raw)
	if err != nil {
		return nil, err
	}
	return img.Bytes(ctx, fetcher)
}
