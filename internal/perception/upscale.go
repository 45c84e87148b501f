package perception

import (
	"context"
	"fmt"

	"fabric-fusion-backend/internal/inference"
)

type Upscaler struct {
	runner   Runner
	modelID  string
	scale    int
	attempts int
}

func NewUpscaler(runner Runner, modelID string, scale, attempts int) *Upscaler {
	if scale < 2 {
		scale = 2
	}
	return &Upscaler{runner: runner, modelID: modelID, scale: scale, attempts: attemptsOrDefault(attempts)}
}

func (u *Upscaler) Scale() int { return u.scale }

// Upscale returns the provider output without downloading it.
func (u *Upscaler) Upscale(ctx context.Context, imageURL string) (inference.GeneratedImage, error) {
	raw, err := u.runner.Run(ctx, u.modelID, map[string]interface{}{
		"image": imageURL,
		"scale": u.scale,
	}, u.attempts)
	if err != nil {
		return inference.GeneratedImage{}, fmt.Errorf("upscale: %w", err)
	}
	img, err := inference.NormalizeImage(raw)
	if err != nil {
		return inference.GeneratedImage{}, fmt.Errorf("upscale: %w", err)
	}
	return img, nil
}
