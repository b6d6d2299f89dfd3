package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a generation task.
// created -> processing -> {completed, failed}; terminal states are
// absorbing.
type Status string

const (
	StatusCreated    Status = "created"
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

// Task is one submitted generation job. A task never exists without a
// prior successful debit of Cost tokens from AccountID.
type Task struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	// ExternalID is the provider-assigned correlation ID, set once
	// submission succeeds. Unique per provider.
	ExternalID *string   `json:"external_id,omitempty" gorm:"uniqueIndex:idx_provider_external"`
	AccountID  uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index"`
	Provider   string    `json:"provider" gorm:"not null;uniqueIndex:idx_provider_external"`
	Operation  string    `json:"operation" gorm:"not null"`
	Prompt     string    `json:"prompt" gorm:"not null"`
	Cost       int64     `json:"cost" gorm:"not null"`
	Status     Status    `json:"status" gorm:"not null;default:created;index"`
	ResultURL  *string   `json:"result_url,omitempty"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Task) TableName() string {
	return "tasks"
}

// IsTerminal returns whether the task has reached a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// BelongsTo checks if the task belongs to the given account.
func (t *Task) BelongsTo(accountID uuid.UUID) bool {
	return t.AccountID == accountID
}

// CompletionRecord is created exactly once per task that reaches
// completed. Its existence is the evidence that a webhook or poll
// result was applied; the unique TaskID constraint is the storage-level
// idempotency backstop.
type CompletionRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TaskID     uuid.UUID `json:"task_id" gorm:"type:uuid;not null;uniqueIndex"`
	AccountID  uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index"`
	Service    string    `json:"service" gorm:"not null"`
	Prompt     string    `json:"prompt" gorm:"not null"`
	ResultURL  string    `json:"result_url" gorm:"not null"`
	TokensUsed int64     `json:"tokens_used" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (CompletionRecord) TableName() string {
	return "completion_records"
}
