package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const lumaName = "luma"

// LumaAdapter normalizes the Luma Dream Machine API. Luma correlates
// by `task_id` and reports `queued`, `dreaming`, `completed`, or
// `failed`. It only pushes webhooks; there is no status lookup.
type LumaAdapter struct {
	client *apiClient
}

// NewLumaAdapter creates a new Luma adapter.
func NewLumaAdapter(baseURL, apiKey string, httpClient *http.Client) *LumaAdapter {
	return &LumaAdapter{
		client: newAPIClient(lumaName, baseURL, apiKey, httpClient),
	}
}

// Name returns the provider name.
func (a *LumaAdapter) Name() string { return lumaName }

// SupportsPolling returns false; Luma delivers results by webhook only.
func (a *LumaAdapter) SupportsPolling() bool { return false }

// DeliversWebhooks returns true; webhooks are the only status channel.
func (a *LumaAdapter) DeliversWebhooks() bool { return true }

type lumaGeneration struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Assets struct {
		Video string `json:"video,omitempty"`
	} `json:"assets"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type lumaSubmission struct {
	Prompt      string         `json:"prompt"`
	CallbackURL string         `json:"callback_url,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Extra       map[string]any `json:"-"`
}

// Submit creates a generation and returns its task ID.
func (a *LumaAdapter) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	if req.Operation != "video" {
		return "", fmt.Errorf("%w: unsupported operation %q", ErrRejected, req.Operation)
	}

	body := &lumaSubmission{
		Prompt:      req.Prompt,
		CallbackURL: req.CallbackURL,
	}
	if ratio, ok := req.Params["aspect_ratio"].(string); ok {
		body.AspectRatio = ratio
	}

	var generation lumaGeneration
	if err := a.client.doJSON(ctx, http.MethodPost, "/generations", body, &generation); err != nil {
		return "", err
	}
	if generation.TaskID == "" {
		return "", fmt.Errorf("%w: generation without task_id", ErrMalformedPayload)
	}
	return generation.TaskID, nil
}

// ParseWebhook parses a Luma webhook payload.
func (a *LumaAdapter) ParseWebhook(raw []byte) (*Update, error) {
	var generation lumaGeneration
	if err := json.Unmarshal(raw, &generation); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if generation.TaskID == "" {
		return nil, fmt.Errorf("%w: missing task_id", ErrMalformedPayload)
	}

	update := &Update{ExternalID: generation.TaskID}
	switch generation.Status {
	case "queued", "dreaming":
		update.Status = StatusProcessing
	case "completed":
		update.Status = StatusCompleted
		update.ResultURL = generation.Assets.Video
	case "failed":
		update.Status = StatusFailed
		update.ErrorMessage = generation.FailureReason
		if update.ErrorMessage == "" {
			update.ErrorMessage = "generation failed"
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, generation.Status)
	}
	return update, nil
}

// PollStatus is not supported by Luma.
func (a *LumaAdapter) PollStatus(_ context.Context, _ string) (*Update, error) {
	return nil, fmt.Errorf("%w: luma has no status lookup", ErrRejected)
}
