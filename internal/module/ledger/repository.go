package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for ledger data access. ApplyEntry is
// the single mutation point for balances.
type Repository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetOrCreateAccount returns the account, creating it if missing.
	// The second return value reports whether the account was created.
	GetOrCreateAccount(ctx context.Context, id uuid.UUID) (*Account, bool, error)
	// ApplyEntry atomically adds amount (signed) to the account balance
	// and appends one ledger entry, all within one transaction. It
	// returns ErrInsufficientBalance when the result would be negative.
	ApplyEntry(ctx context.Context, accountID uuid.UUID, amount int64, kind EntryKind, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*Entry, error)
	SumEntries(ctx context.Context, accountID uuid.UUID) (int64, error)
	// WithTx returns a repository bound to an open transaction so a
	// ledger write can commit together with another module's writes.
	WithTx(tx *gorm.DB) Repository
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

func (r *repository) GetOrCreateAccount(ctx context.Context, id uuid.UUID) (*Account, bool, error) {
	account, err := r.GetAccount(ctx, id)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	account = &Account{ID: id}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return nil, false, fmt.Errorf("create account: %w", result.Error)
	}
	// Under a first-interaction race both callers miss the read above
	// and both insert; only the insert that actually lands a row may
	// report created, or the signup bonus would be applied twice.
	created := result.RowsAffected == 1

	// Re-read in case a concurrent request created it first.
	account, err = r.GetAccount(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

func (r *repository) ApplyEntry(ctx context.Context, accountID uuid.UUID, amount int64, kind EntryKind, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error) {
	var entry *Entry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&account, "id = ?", accountID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}

		newBalance := account.Balance + amount
		if newBalance < 0 {
			return ErrInsufficientBalance
		}

		if err := tx.Model(&Account{}).
			Where("id = ?", accountID).
			Update("balance", newBalance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		entry = &Entry{
			ID:            uuid.New(),
			AccountID:     accountID,
			Amount:        amount,
			Kind:          kind,
			BalanceBefore: account.Balance,
			BalanceAfter:  newBalance,
			RelatedTaskID: relatedTaskID,
			Service:       service,
			Reason:        reason,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []*Entry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *repository) SumEntries(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ?", accountID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return total, nil
}
