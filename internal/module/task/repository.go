package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for task data access. Terminal
// transitions use conditional updates so concurrent and repeated
// reconciliation attempts collapse into exactly one applied change.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// GetByExternalID looks a task up by its provider correlation key.
	GetByExternalID(ctx context.Context, provider, externalID string) (*Task, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Task, error)
	// MarkProcessing stores the external ID and moves created ->
	// processing.
	MarkProcessing(ctx context.Context, id uuid.UUID, externalID string) error
	// Complete atomically moves processing -> completed, stores the
	// result URL, and creates the completion record. Returns
	// ErrAlreadyTerminal when the task is no longer processing.
	Complete(ctx context.Context, id uuid.UUID, resultURL string, record *CompletionRecord) error
	// Fail atomically moves a non-terminal task to failed, stores the
	// error, and runs refund inside the same transaction, so the
	// terminal transition and the compensating ledger entry commit or
	// roll back together. Returns ErrAlreadyTerminal when already
	// terminal.
	Fail(ctx context.Context, id uuid.UUID, errMsg string, refund func(tx *gorm.DB) error) error
	// ListProcessing returns processing tasks for a provider, used to
	// resume polling after a restart.
	ListProcessing(ctx context.Context, provider string) ([]*Task, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new task repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, t *Task) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (r *repository) GetByExternalID(ctx context.Context, provider, externalID string) (*Task, error) {
	var t Task
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task by external id: %w", err)
	}
	return &t, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var tasks []*Task
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID, externalID string) error {
	result := r.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusCreated).
		Updates(map[string]any{
			"external_id": externalID,
			"status":      StatusProcessing,
		})
	if result.Error != nil {
		return fmt.Errorf("mark processing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyTerminal
	}
	return nil
}

func (r *repository) Complete(ctx context.Context, id uuid.UUID, resultURL string, record *CompletionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Task{}).
			Where("id = ? AND status = ?", id, StatusProcessing).
			Updates(map[string]any{
				"status":     StatusCompleted,
				"result_url": resultURL,
			})
		if result.Error != nil {
			return fmt.Errorf("complete task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyTerminal
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("create completion record: %w", err)
		}
		return nil
	})
}

func (r *repository) Fail(ctx context.Context, id uuid.UUID, errMsg string, refund func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Task{}).
			Where("id = ? AND status IN ?", id, []Status{StatusCreated, StatusProcessing}).
			Updates(map[string]any{
				"status": StatusFailed,
				"error":  errMsg,
			})
		if result.Error != nil {
			return fmt.Errorf("fail task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyTerminal
		}
		if refund != nil {
			if err := refund(tx); err != nil {
				return fmt.Errorf("refund failed task: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) ListProcessing(ctx context.Context, provider string) ([]*Task, error) {
	var tasks []*Task
	err := r.db.WithContext(ctx).
		Where("provider = ? AND status = ?", provider, StatusProcessing).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list processing tasks: %w", err)
	}
	return tasks, nil
}
