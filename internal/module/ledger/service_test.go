package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// memoryRepository is an in-memory Repository with the same atomicity
// semantics as the SQL implementation.
type memoryRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	entries  map[uuid.UUID][]*Entry
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		accounts: make(map[uuid.UUID]*Account),
		entries:  make(map[uuid.UUID][]*Entry),
	}
}

func (r *memoryRepository) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *memoryRepository) GetOrCreateAccount(_ context.Context, id uuid.UUID) (*Account, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		copied := *account
		return &copied, false, nil
	}
	account := &Account{ID: id, CreatedAt: time.Now()}
	r.accounts[id] = account
	copied := *account
	return &copied, true, nil
}

func (r *memoryRepository) ApplyEntry(_ context.Context, accountID uuid.UUID, amount int64, kind EntryKind, service, reason string, relatedTaskID *uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	newBalance := account.Balance + amount
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}
	entry := &Entry{
		ID:            uuid.New(),
		AccountID:     accountID,
		Amount:        amount,
		Kind:          kind,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		RelatedTaskID: relatedTaskID,
		Service:       service,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
	account.Balance = newBalance
	r.entries[accountID] = append(r.entries[accountID], entry)
	return entry, nil
}

func (r *memoryRepository) WithTx(_ *gorm.DB) Repository {
	return r
}

func (r *memoryRepository) ListEntries(_ context.Context, accountID uuid.UUID, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[accountID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*Entry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *memoryRepository) SumEntries(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.entries[accountID] {
		total += e.Amount
	}
	return total, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, NewPriceTable(nil), 0, nil, zap.NewNop())
}

func TestService_DebitCreditRefund(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo)
	accountID := uuid.New()

	_, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, accountID, 100, EntryKindPurchase, "token pack")
	require.NoError(t, err)

	taskID := uuid.New()
	entry, err := svc.Debit(ctx, accountID, 10, "replicate", &taskID)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), entry.Amount)
	assert.Equal(t, int64(100), entry.BalanceBefore)
	assert.Equal(t, int64(90), entry.BalanceAfter)

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)

	_, err = svc.Refund(ctx, accountID, 10, "replicate", "generation failed", &taskID)
	require.NoError(t, err)

	balance, err = svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "debit followed by refund must be net zero")
}

func TestService_DebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo)
	accountID := uuid.New()

	_, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, accountID, 10, "replicate", nil)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// A failed debit must leave no trace.
	entries, err := svc.History(ctx, accountID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_DebitUnknownAccount(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	_, err := svc.Debit(context.Background(), uuid.New(), 10, "replicate", nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestService_InvalidAmounts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepository())
	accountID := uuid.New()

	_, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, accountID, 0, "replicate", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Credit(ctx, accountID, -5, EntryKindPurchase, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Refund(ctx, accountID, 0, "replicate", "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestService_SignupBonus(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := NewService(repo, NewPriceTable(nil), 20, nil, zap.NewNop())
	accountID := uuid.New()

	account, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), account.Balance)

	// Second call must not grant the bonus again.
	account, err = svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), account.Balance)
}

func TestService_SignupBonus_ConcurrentFirstInteraction(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := NewService(repo, NewPriceTable(nil), 20, nil, zap.NewNop())
	accountID := uuid.New()

	// All callers race the first interaction; only the one whose
	// insert lands may mint the bonus.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrCreateAccount(ctx, accountID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	sum, err := repo.SumEntries(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), sum)
}

func TestService_EntriesSumEqualsBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo)
	accountID := uuid.New()

	_, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, accountID, 100, EntryKindPurchase, "")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, accountID, 30, "luma", nil)
	require.NoError(t, err)
	_, err = svc.Refund(ctx, accountID, 30, "luma", "generation failed", nil)
	require.NoError(t, err)
	_, err = svc.Debit(ctx, accountID, 8, "stability", nil)
	require.NoError(t, err)

	sum, err := repo.SumEntries(ctx, accountID)
	require.NoError(t, err)
	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, balance, sum)

	entries, err := svc.History(ctx, accountID, 100)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, e.BalanceAfter, e.BalanceBefore+e.Amount)
	}
}

func TestService_ConcurrentDebitsSerialize(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository()
	svc := newTestService(repo)
	accountID := uuid.New()

	_, err := svc.GetOrCreateAccount(ctx, accountID)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, accountID, 50, EntryKindPurchase, "")
	require.NoError(t, err)

	// 10 concurrent debits of 10 against a balance of 50: exactly 5
	// must succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(ctx, accountID, 10, "replicate", nil); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	balance, err := svc.Balance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}
