package provider

import (
	"context"
	"fmt"
	"net/http"
)

const stabilityName = "stability"

// StabilityAdapter normalizes the Stability AI async API. Stability
// correlates by `request_id`, reports `Pending`, `Succeeded`, or
// `Failed`, and has no push channel, so its tasks are driven entirely
// by the polling fallback.
type StabilityAdapter struct {
	client *apiClient
	paths  map[string]string // operation -> submit path
}

// NewStabilityAdapter creates a new Stability adapter.
func NewStabilityAdapter(baseURL, apiKey string, httpClient *http.Client) *StabilityAdapter {
	return &StabilityAdapter{
		client: newAPIClient(stabilityName, baseURL, apiKey, httpClient),
		paths: map[string]string{
			"image":   "/stable-image/generate/core",
			"upscale": "/stable-image/upscale/creative",
		},
	}
}

// Name returns the provider name.
func (a *StabilityAdapter) Name() string { return stabilityName }

// SupportsPolling returns true; polling is the only status channel.
func (a *StabilityAdapter) SupportsPolling() bool { return true }

// DeliversWebhooks returns false; results must be polled.
func (a *StabilityAdapter) DeliversWebhooks() bool { return false }

type stabilityResult struct {
	RequestID    string `json:"request_id"`
	Status       string `json:"Status"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Submit starts an async generation and returns its request ID.
func (a *StabilityAdapter) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	path, ok := a.paths[req.Operation]
	if !ok {
		return "", fmt.Errorf("%w: unsupported operation %q", ErrRejected, req.Operation)
	}

	body := map[string]any{"prompt": req.Prompt, "async": true}
	for k, v := range req.Params {
		body[k] = v
	}

	var result stabilityResult
	if err := a.client.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return "", err
	}
	if result.RequestID == "" {
		return "", fmt.Errorf("%w: response without request_id", ErrMalformedPayload)
	}
	return result.RequestID, nil
}

// ParseWebhook always fails; Stability has no push channel.
func (a *StabilityAdapter) ParseWebhook(_ []byte) (*Update, error) {
	return nil, fmt.Errorf("%w: stability has no webhook channel", ErrMalformedPayload)
}

// PollStatus fetches the result of an async generation.
func (a *StabilityAdapter) PollStatus(ctx context.Context, externalID string) (*Update, error) {
	var result stabilityResult
	if err := a.client.doJSON(ctx, http.MethodGet, "/results/"+externalID, nil, &result); err != nil {
		return nil, err
	}
	if result.RequestID == "" {
		result.RequestID = externalID
	}

	update := &Update{ExternalID: result.RequestID}
	switch result.Status {
	case "Pending":
		update.Status = StatusProcessing
	case "Succeeded":
		update.Status = StatusCompleted
		update.ResultURL = result.ResultURL
	case "Failed":
		update.Status = StatusFailed
		update.ErrorMessage = result.ErrorMessage
		if update.ErrorMessage == "" {
			update.ErrorMessage = "generation failed"
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, result.Status)
	}
	return update, nil
}
