package security

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAuditRepository keeps audit entries in memory.
type fakeAuditRepository struct {
	entries []*AuditEntry
}

func (r *fakeAuditRepository) Create(_ context.Context, entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepository) CountSince(_ context.Context, accountID uuid.UUID, since time.Time, onlyFailed bool) (int64, error) {
	var count int64
	for _, e := range r.entries {
		if e.AccountID != accountID || e.CreatedAt.Before(since) {
			continue
		}
		if onlyFailed && e.Success {
			continue
		}
		count++
	}
	return count, nil
}

func newTestGate(audit AuditRepository) *Service {
	return NewService(newTestValidator(), newTestLimiter(), audit, DefaultConfig(), zap.NewNop())
}

func TestService_AdmitHappyPath(t *testing.T) {
	gate := newTestGate(&fakeAuditRepository{})

	err := gate.Admit(context.Background(), uuid.New(), "generate", "a calm lake under the northern lights")
	assert.NoError(t, err)
}

func TestService_AdmitRejectsInvalidPrompt(t *testing.T) {
	gate := newTestGate(&fakeAuditRepository{})

	err := gate.Admit(context.Background(), uuid.New(), "generate", "ab")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestService_AdmitRateLimits(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(&fakeAuditRepository{})
	accountID := uuid.New()

	for i := 0; i < 10; i++ {
		require.NoError(t, gate.Admit(ctx, accountID, "generate", "a calm lake under the northern lights"))
	}
	err := gate.Admit(ctx, accountID, "generate", "a calm lake under the northern lights")
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different action has its own window.
	assert.NoError(t, gate.Admit(ctx, accountID, "upscale", "a calm lake under the northern lights"))
}

func TestService_AdmitRejectsBlocked(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(&fakeAuditRepository{})
	accountID := uuid.New()

	require.NoError(t, gate.BlockUser(ctx, accountID, "manual review", 10*time.Minute))

	err := gate.Admit(ctx, accountID, "generate", "a calm lake under the northern lights")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestService_SuspicionFromFailedOperations(t *testing.T) {
	ctx := context.Background()
	audit := &fakeAuditRepository{}
	gate := newTestGate(audit)
	accountID := uuid.New()

	for i := 0; i < 21; i++ {
		gate.RecordAudit(ctx, accountID, "generate", false, "")
	}

	result, err := gate.CheckSuspiciousActivity(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Suspicious)
	assert.Equal(t, "too many failed operations", result.Reason)

	// Admit blocks the account on a suspicious verdict.
	err = gate.Admit(ctx, accountID, "generate", "a calm lake under the northern lights")
	assert.ErrorIs(t, err, ErrBlocked)

	blocked, _, err := gate.IsBlocked(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestService_SuspicionFromBurst(t *testing.T) {
	ctx := context.Background()
	audit := &fakeAuditRepository{}
	gate := newTestGate(audit)
	accountID := uuid.New()

	for i := 0; i < 51; i++ {
		gate.RecordAudit(ctx, accountID, "generate", true, "")
	}

	result, err := gate.CheckSuspiciousActivity(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, result.Suspicious)
	assert.Equal(t, "operation burst", result.Reason)
}
