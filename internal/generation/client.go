// Package generation wraps model calls with bounded linear retry.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fabric-fusion-backend/internal/inference"
	"fabric-fusion-backend/internal/logger"
)

var ErrAttemptsExhausted = errors.New("model attempts exhausted")

type Client struct {
	model     inference.Model
	baseDelay time.Duration
	log       *logger.Logger
}

func NewClient(model inference.Model, baseDelay time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{model: model, baseDelay: baseDelay, log: log}
}

// Run calls the model up to maxAttempts times. A reported model error counts
// as a failed attempt. Attempt n is followed by a pause of n*baseDelay unless
// it was the last one. The output is returned unmodified.
func (c *Client) Run(ctx context.Context, modelID string, payload interface{}, maxAttempts int) (json.RawMessage, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := c.model.Predict(ctx, modelID, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err
		c.log.Warn("Model call failed",
			"model", modelID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * c.baseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w for %s: %w", ErrAttemptsExhausted, modelID, lastErr)
}
