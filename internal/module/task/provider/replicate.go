package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const replicateName = "replicate"

// ReplicateAdapter normalizes the Replicate prediction API. Replicate
// correlates by `id` and reports `starting`, `processing`, `succeeded`,
// `failed`, or `canceled`; it delivers webhooks and supports polling.
type ReplicateAdapter struct {
	client *apiClient
	models map[string]string // operation -> model version
}

// NewReplicateAdapter creates a new Replicate adapter.
func NewReplicateAdapter(baseURL, apiKey string, httpClient *http.Client) *ReplicateAdapter {
	return &ReplicateAdapter{
		client: newAPIClient(replicateName, baseURL, apiKey, httpClient),
		models: map[string]string{
			"image":   "black-forest-labs/flux-schnell",
			"upscale": "nightmareai/real-esrgan",
		},
	}
}

// Name returns the provider name.
func (a *ReplicateAdapter) Name() string { return replicateName }

// SupportsPolling returns true; predictions can be fetched by ID.
func (a *ReplicateAdapter) SupportsPolling() bool { return true }

// DeliversWebhooks returns true; polling is a safety net only.
func (a *ReplicateAdapter) DeliversWebhooks() bool { return true }

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type replicateSubmission struct {
	Model               string         `json:"model"`
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

// Submit creates a prediction and returns its ID.
func (a *ReplicateAdapter) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	model, ok := a.models[req.Operation]
	if !ok {
		return "", fmt.Errorf("%w: unsupported operation %q", ErrRejected, req.Operation)
	}

	input := map[string]any{"prompt": req.Prompt}
	for k, v := range req.Params {
		input[k] = v
	}

	body := &replicateSubmission{
		Model: model,
		Input: input,
	}
	if req.CallbackURL != "" {
		body.Webhook = req.CallbackURL
		body.WebhookEventsFilter = []string{"completed"}
	}

	var prediction replicatePrediction
	if err := a.client.doJSON(ctx, http.MethodPost, "/predictions", body, &prediction); err != nil {
		return "", err
	}
	if prediction.ID == "" {
		return "", fmt.Errorf("%w: prediction without id", ErrMalformedPayload)
	}
	return prediction.ID, nil
}

// ParseWebhook parses a Replicate webhook payload.
func (a *ReplicateAdapter) ParseWebhook(raw []byte) (*Update, error) {
	var prediction replicatePrediction
	if err := json.Unmarshal(raw, &prediction); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return a.toUpdate(&prediction)
}

// PollStatus fetches a prediction by ID.
func (a *ReplicateAdapter) PollStatus(ctx context.Context, externalID string) (*Update, error) {
	var prediction replicatePrediction
	if err := a.client.doJSON(ctx, http.MethodGet, "/predictions/"+externalID, nil, &prediction); err != nil {
		return nil, err
	}
	return a.toUpdate(&prediction)
}

func (a *ReplicateAdapter) toUpdate(p *replicatePrediction) (*Update, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedPayload)
	}

	update := &Update{ExternalID: p.ID}
	switch p.Status {
	case "starting", "processing":
		update.Status = StatusProcessing
	case "succeeded":
		update.Status = StatusCompleted
		update.ResultURL = firstOutputURL(p.Output)
	case "failed", "canceled":
		update.Status = StatusFailed
		update.ErrorMessage = p.Error
		if update.ErrorMessage == "" {
			update.ErrorMessage = "prediction " + p.Status
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, p.Status)
	}
	return update, nil
}

// firstOutputURL extracts the result URL from a prediction output,
// which Replicate delivers either as a single string or a string array.
func firstOutputURL(output json.RawMessage) string {
	if len(output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}
