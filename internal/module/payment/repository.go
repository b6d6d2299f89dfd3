package payment

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository defines the interface for webhook event bookkeeping.
type Repository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Create(ctx context.Context, event *WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID string, processErr error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return count > 0, nil
}

func (r *repository) Create(ctx context.Context, event *WebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create webhook event: %w", err)
	}
	return nil
}

func (r *repository) MarkProcessed(ctx context.Context, eventID string, processErr error) error {
	now := time.Now()
	updates := map[string]any{
		"processed":    true,
		"processed_at": &now,
	}
	if processErr != nil {
		msg := processErr.Error()
		updates["error"] = &msg
	}

	err := r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}
