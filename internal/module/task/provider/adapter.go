package provider

import "context"

// Status is the canonical task status vocabulary. Each adapter owns the
// mapping from its provider's spelling into these values; nothing
// outside this package branches on provider-specific names.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SubmitRequest is the normalized form of a generation submission.
type SubmitRequest struct {
	Operation string
	Prompt    string
	Params    map[string]any
	// CallbackURL is where the provider should deliver its completion
	// webhook, for providers that push.
	CallbackURL string
}

// Update is the normalized form of one provider status report, from
// either a webhook or a poll.
type Update struct {
	ExternalID   string
	Status       Status
	ResultURL    string
	ErrorMessage string
}

// Adapter normalizes one provider's submit/status/webhook shape.
type Adapter interface {
	// Name returns the provider name used in routes and task records.
	Name() string

	// Submit issues the provider-specific creation call and returns
	// the provider-assigned correlation ID.
	Submit(ctx context.Context, req *SubmitRequest) (string, error)

	// ParseWebhook parses a raw inbound payload into a canonical
	// update.
	ParseWebhook(raw []byte) (*Update, error)

	// DeliversWebhooks reports whether the provider pushes status
	// updates. When it does not, the poll loop is the only way a task
	// ever reaches a terminal state.
	DeliversWebhooks() bool

	// SupportsPolling reports whether the provider offers a status
	// lookup. Providers without a reliable push channel must.
	SupportsPolling() bool

	// PollStatus issues a provider-specific status lookup.
	PollStatus(ctx context.Context, externalID string) (*Update, error)
}
