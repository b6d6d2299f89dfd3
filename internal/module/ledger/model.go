package ledger

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryKindPurchase    EntryKind = "purchase"
	EntryKindSpend       EntryKind = "spend"
	EntryKindRefund      EntryKind = "refund"
	EntryKindBonus       EntryKind = "bonus"
	EntryKindAdminAdjust EntryKind = "admin_adjust"
)

// String returns the string representation of the entry kind.
func (k EntryKind) String() string {
	return string(k)
}

// Account holds one user's token balance. The balance is mutated only
// through Debit/Credit/Refund; at any quiescent point it equals the sum
// of the account's ledger entries.
type Account struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Balance   int64     `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Account) TableName() string {
	return "accounts"
}

// Entry is one immutable, append-only ledger record. Entries are never
// edited or deleted.
type Entry struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountID     uuid.UUID  `json:"account_id" gorm:"type:uuid;not null;index"`
	Amount        int64      `json:"amount" gorm:"not null"` // signed: negative for spend
	Kind          EntryKind  `json:"kind" gorm:"not null"`
	BalanceBefore int64      `json:"balance_before" gorm:"not null"`
	BalanceAfter  int64      `json:"balance_after" gorm:"not null"`
	RelatedTaskID *uuid.UUID `json:"related_task_id,omitempty" gorm:"type:uuid;index"`
	Service       string     `json:"service,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName returns the database table name.
func (Entry) TableName() string {
	return "ledger_entries"
}
