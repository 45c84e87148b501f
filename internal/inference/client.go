// Package inference talks to the hosted model API used for every remote
// perception and generation capability.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Model runs one prediction against a hosted model.
type Model interface {
	Predict(ctx context.Context, modelID string, payload interface{}) (json.RawMessage, error)
}

// RemoteError is an error the model API reported in an otherwise successful
// response.
type RemoteError struct {
	ModelID string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("model %s: %s", e.ModelID, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type predictRequest struct {
	Inputs interface{} `json:"inputs"`
}

type predictResponse struct {
	Error  json.RawMessage `json:"error"`
	Output json.RawMessage `json:"output"`
}

// NewClient builds a client. ratePerSec <= 0 disables pacing.
func NewClient(baseURL, apiKey string, ratePerSec float64) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter: limiter,
	}
}

func (c *Client) Predict(ctx context.Context, modelID string, payload interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(predictRequest{Inputs: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/models/" + modelID + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result predictResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && hasError(result.Error) {
			return nil, &RemoteError{ModelID: modelID, Message: errorText(result.Error)}
		}
		return nil, fmt.Errorf("model %s: status %d, body: %s", modelID, resp.StatusCode, truncate(body, 512))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if hasError(result.Error) {
		return nil, &RemoteError{ModelID: modelID, Message: errorText(result.Error)}
	}
	if len(result.Output) == 0 || string(result.Output) == "null" {
		return nil, &RemoteError{ModelID: modelID, Message: "empty output"}
	}
	return result.Output, nil
}

func hasError(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != `""` && s != "false"
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
