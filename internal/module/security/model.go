package security

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is a side-channel record of security and ledger relevant
// events. It feeds suspicious-activity scoring and admin review; the
// ledger never reads it for correctness.
type AuditEntry struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null;index"`
	Action    string    `json:"action" gorm:"not null;index"`
	Success   bool      `json:"success" gorm:"not null;default:true"`
	Metadata  string    `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name.
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// ValidationResult is the outcome of a prompt validation.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SuspicionResult is the outcome of a suspicious-activity check.
type SuspicionResult struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
}
