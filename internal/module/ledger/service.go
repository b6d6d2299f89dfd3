package ledger

import (
	"context"
	"fmt"

	"github.com/artigen/server/internal/utils/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service implements balance accounting. All mutations go through the
// repository's single transactional entry point, so concurrent
// operations on one account serialize in the store.
type Service struct {
	repo        Repository
	prices      *PriceTable
	signupBonus int64
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewService creates a new ledger service.
func NewService(repo Repository, prices *PriceTable, signupBonus int64, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		prices:      prices,
		signupBonus: signupBonus,
		metrics:     m,
		logger:      logger.Named("ledger"),
	}
}

// Cost returns the token cost of one operation of a service.
func (s *Service) Cost(service, operation string) (int64, error) {
	return s.prices.Cost(service, operation)
}

// GetOrCreateAccount returns the account for the given ID, creating it
// with the signup bonus on first interaction.
func (s *Service) GetOrCreateAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	account, created, err := s.repo.GetOrCreateAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if created && s.signupBonus > 0 {
		if _, err := s.repo.ApplyEntry(ctx, accountID, s.signupBonus, EntryKindBonus, "", "signup bonus", nil); err != nil {
			return nil, fmt.Errorf("apply signup bonus: %w", err)
		}
		s.metrics.RecordLedgerEntry(EntryKindBonus.String(), s.signupBonus)
		return s.repo.GetAccount(ctx, accountID)
	}
	return account, nil
}

// CheckBalance reports whether the account can afford amount tokens.
func (s *Service) CheckBalance(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return account.Balance >= amount, nil
}

// Balance returns the current balance of an account.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// History returns the most recent ledger entries for an account.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, limit int) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, accountID, limit)
}

// Debit removes amount tokens from the account and appends a spend
// entry. It fails with ErrInsufficientBalance or ErrAccountNotFound
// without side effects.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount int64, service string, relatedTaskID *uuid.UUID) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := s.repo.ApplyEntry(ctx, accountID, -amount, EntryKindSpend, service, "", relatedTaskID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLedgerEntry(EntryKindSpend.String(), amount)

	s.logger.Info("tokens debited",
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
		zap.String("service", service),
		zap.Int64("balance", entry.BalanceAfter),
	)
	return entry, nil
}

// Credit adds amount tokens to the account (purchases, bonuses, admin
// adjustments).
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int64, kind EntryKind, reason string) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := s.repo.ApplyEntry(ctx, accountID, amount, kind, "", reason, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLedgerEntry(kind.String(), amount)

	s.logger.Info("tokens credited",
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
		zap.String("kind", kind.String()),
		zap.String("reason", reason),
		zap.Int64("balance", entry.BalanceAfter),
	)
	return entry, nil
}

// Refund compensates a prior debit. It is called only by the
// orchestration and reconciliation paths, never by user-facing code.
func (s *Service) Refund(ctx context.Context, accountID uuid.UUID, amount int64, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error) {
	return s.refund(ctx, s.repo, accountID, amount, service, reason, relatedTaskID)
}

// RefundInTx is Refund joined to an open transaction, so the caller's
// state change and the compensating entry commit or roll back together.
func (s *Service) RefundInTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount int64, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error) {
	return s.refund(ctx, s.repo.WithTx(tx), accountID, amount, service, reason, relatedTaskID)
}

func (s *Service) refund(ctx context.Context, repo Repository, accountID uuid.UUID, amount int64, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := repo.ApplyEntry(ctx, accountID, amount, EntryKindRefund, service, reason, relatedTaskID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLedgerEntry(EntryKindRefund.String(), amount)

	s.logger.Info("tokens refunded",
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
		zap.String("service", service),
		zap.String("reason", reason),
		zap.Int64("balance", entry.BalanceAfter),
	)
	return entry, nil
}
