package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository defines the interface for audit data access.
type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	// CountSince counts an account's audit entries newer than since.
	// With onlyFailed set, only unsuccessful operations are counted.
	CountSince(ctx context.Context, accountID uuid.UUID, since time.Time, onlyFailed bool) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) CountSince(ctx context.Context, accountID uuid.UUID, since time.Time, onlyFailed bool) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&AuditEntry{}).
		Where("account_id = ? AND created_at >= ?", accountID, since)
	if onlyFailed {
		q = q.Where("success = false")
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}
