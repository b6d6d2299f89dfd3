package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event describes one terminal task outcome for downstream consumers
// (the conversation layer subscribes and renders the result to the
// user). Delivery is best-effort: a failed publish never rolls back the
// ledger or the task.
type Event struct {
	TaskID    uuid.UUID `json:"task_id"`
	AccountID uuid.UUID `json:"account_id"`
	Service   string    `json:"service"`
	Prompt    string    `json:"prompt"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Tokens    int64     `json:"tokens"`
	At        time.Time `json:"at"`
}

// Notifier publishes task outcome notifications.
type Notifier interface {
	TaskCompleted(ctx context.Context, ev *Event) error
	TaskFailed(ctx context.Context, ev *Event) error
}

// --- NATS implementation ---

// NATSNotifier publishes events to NATS subjects
// <prefix>.tasks.completed and <prefix>.tasks.failed.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSNotifier connects to NATS and returns a notifier.
func NewNATSNotifier(url, prefix string, logger *zap.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if prefix == "" {
		prefix = "artigen"
	}
	return &NATSNotifier{
		conn:   conn,
		prefix: prefix,
		logger: logger.Named("notify"),
	}, nil
}

// TaskCompleted publishes a completion event.
func (n *NATSNotifier) TaskCompleted(_ context.Context, ev *Event) error {
	return n.publish(n.prefix+".tasks.completed", ev)
}

// TaskFailed publishes a failure event.
func (n *NATSNotifier) TaskFailed(_ context.Context, ev *Event) error {
	return n.publish(n.prefix+".tasks.failed", ev)
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn("nats drain failed", zap.Error(err))
	}
}

func (n *NATSNotifier) publish(subject string, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// --- Nop implementation ---

// NopNotifier drops all events. Used when NATS is not configured.
type NopNotifier struct{}

// TaskCompleted drops the event.
func (NopNotifier) TaskCompleted(context.Context, *Event) error { return nil }

// TaskFailed drops the event.
func (NopNotifier) TaskFailed(context.Context, *Event) error { return nil }
