package perception

import (
	"context"
	"fmt"

	"fabric-fusion-backend/internal/inference"
)

type EdgeMapper struct {
	runner   Runner
	fetcher  inference.Fetcher
	modelID  string
	attempts int
}

func NewEdgeMapper(runner Runner, fetcher inference.Fetcher, modelID string, attempts int) *EdgeMapper {
	return &EdgeMapper{runner: runner, fetcher: fetcher, modelID: modelID, attempts: attemptsOrDefault(attempts)}
}

// Map returns an encoded edge map of the image for conditioning.
func (e *EdgeMapper) Map(ctx context.Context, imageURL string) ([]byte, error) {
	raw, err := e.runner.Run(ctx, e.modelID, map[string]interface{}{
		"image": imageURL,
		"mode":  "edge_detection",
	}, e.attempts)
	if err != nil {
		return nil, fmt.Errorf("edge map: %w", err)
	}
	edge, err := resolveImage(ctx, raw, e.fetcher)
	if err != nil {
		return nil, fmt.Errorf("edge map: %w", err)
	}
	return edge, nil
}
