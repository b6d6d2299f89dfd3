package task

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/artigen/server/internal/module/ledger"
	"github.com/artigen/server/internal/module/task/notify"
	"github.com/artigen/server/internal/module/task/provider"
	"github.com/artigen/server/internal/utils/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger is the slice of the token ledger the task module depends on.
type Ledger interface {
	Cost(service, operation string) (int64, error)
	Debit(ctx context.Context, accountID uuid.UUID, amount int64, service string, relatedTaskID *uuid.UUID) (*ledger.Entry, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int64, service, reason string, relatedTaskID *uuid.UUID) (*ledger.Entry, error)
	// RefundInTx joins a refund to an open transaction, so a task's
	// terminal transition and its compensating entry commit together.
	RefundInTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount int64, service, reason string, relatedTaskID *uuid.UUID) (*ledger.Entry, error)
}

// ErrBadSignature means an inbound webhook failed HMAC verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// Reconciler applies provider status reports to tasks. Every update is
// safe to apply more than once: terminal tasks absorb further updates,
// the completion record is keyed uniquely by task, and the refund is
// issued only by the attempt that wins the terminal transition.
type Reconciler struct {
	repo     Repository
	ledger   Ledger
	registry *provider.Registry
	notifier notify.Notifier
	// secret, when non-empty, makes webhook HMAC verification
	// mandatory.
	secret  string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(repo Repository, tokens Ledger, registry *provider.Registry, notifier notify.Notifier, secret string, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:     repo,
		ledger:   tokens,
		registry: registry,
		notifier: notifier,
		secret:   secret,
		metrics:  m,
		logger:   logger.Named("reconciler"),
	}
}

// VerifySignature checks the HMAC-SHA256 signature of a webhook body.
// With no secret configured it accepts everything.
func (r *Reconciler) VerifySignature(payload []byte, signature string) error {
	if r.secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// HandleInboundUpdate parses one raw webhook payload for the named
// provider and applies it.
func (r *Reconciler) HandleInboundUpdate(ctx context.Context, providerName string, raw []byte) error {
	adapter, err := r.registry.Get(providerName)
	if err != nil {
		r.metrics.RecordWebhook(providerName, "unknown")
		return err
	}

	update, err := adapter.ParseWebhook(raw)
	if err != nil {
		r.metrics.RecordWebhook(providerName, "rejected")
		return err
	}

	if err := r.Apply(ctx, providerName, update); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			r.metrics.RecordWebhook(providerName, "unknown")
		} else {
			r.metrics.RecordWebhook(providerName, "rejected")
		}
		return err
	}
	r.metrics.RecordWebhook(providerName, "applied")
	return nil
}

// Apply applies one canonical update to the task it correlates with.
// Non-terminal updates and updates for already-terminal tasks are
// no-ops; an update without a matching task is ErrTaskNotFound and is
// never turned into a new task.
func (r *Reconciler) Apply(ctx context.Context, providerName string, update *provider.Update) error {
	if !update.Status.IsTerminal() {
		return nil
	}

	t, err := r.repo.GetByExternalID(ctx, providerName, update.ExternalID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			r.logger.Warn("update for unknown task discarded",
				zap.String("provider", providerName),
				zap.String("external_id", update.ExternalID),
			)
		}
		return err
	}

	// Primary defense against at-least-once delivery: terminal tasks
	// absorb everything.
	if t.IsTerminal() {
		r.logger.Debug("duplicate update for terminal task discarded",
			zap.String("task_id", t.ID.String()),
			zap.String("external_id", update.ExternalID),
		)
		return nil
	}

	switch update.Status {
	case provider.StatusCompleted:
		return r.applyCompleted(ctx, t, update)
	case provider.StatusFailed:
		return r.applyFailed(ctx, t, update)
	default:
		return nil
	}
}

func (r *Reconciler) applyCompleted(ctx context.Context, t *Task, update *provider.Update) error {
	record := &CompletionRecord{
		TaskID:     t.ID,
		AccountID:  t.AccountID,
		Service:    t.Provider,
		Prompt:     t.Prompt,
		ResultURL:  update.ResultURL,
		TokensUsed: t.Cost,
	}
	if err := r.repo.Complete(ctx, t.ID, update.ResultURL, record); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			// Lost the race against a concurrent duplicate.
			return nil
		}
		return fmt.Errorf("apply completion: %w", err)
	}

	r.metrics.RecordTaskSettled(t.Provider, StatusCompleted.String(), time.Since(t.CreatedAt))
	r.logger.Info("task completed",
		zap.String("task_id", t.ID.String()),
		zap.String("provider", t.Provider),
		zap.String("account_id", t.AccountID.String()),
	)

	r.notify(ctx, t, update.ResultURL, "")
	return nil
}

func (r *Reconciler) applyFailed(ctx context.Context, t *Task, update *provider.Update) error {
	// The terminal transition and the refund share one transaction:
	// only the attempt that wins the transition writes the refund, and
	// a refund error rolls the task back to processing so a replayed
	// update retries both.
	err := r.repo.Fail(ctx, t.ID, update.ErrorMessage, func(tx *gorm.DB) error {
		_, err := r.ledger.RefundInTx(ctx, tx, t.AccountID, t.Cost, t.Provider, "generation failed", &t.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			return nil
		}
		r.logger.Error("failure did not settle",
			zap.String("task_id", t.ID.String()),
			zap.String("account_id", t.AccountID.String()),
			zap.Int64("amount", t.Cost),
			zap.Error(err),
		)
		return fmt.Errorf("apply failure: %w", err)
	}

	r.metrics.RecordTaskSettled(t.Provider, StatusFailed.String(), time.Since(t.CreatedAt))
	r.logger.Info("task failed, tokens refunded",
		zap.String("task_id", t.ID.String()),
		zap.String("provider", t.Provider),
		zap.String("account_id", t.AccountID.String()),
		zap.Int64("amount", t.Cost),
		zap.String("error", update.ErrorMessage),
	)

	r.notify(ctx, t, "", update.ErrorMessage)
	return nil
}

// notify publishes the terminal outcome. Failures are logged only:
// notification never rolls back the ledger or the task.
func (r *Reconciler) notify(ctx context.Context, t *Task, resultURL, errMsg string) {
	ev := &notify.Event{
		TaskID:    t.ID,
		AccountID: t.AccountID,
		Service:   t.Provider,
		Prompt:    t.Prompt,
		ResultURL: resultURL,
		Error:     errMsg,
		Tokens:    t.Cost,
		At:        time.Now(),
	}

	var err error
	if errMsg == "" {
		err = r.notifier.TaskCompleted(ctx, ev)
	} else {
		err = r.notifier.TaskFailed(ctx, ev)
	}
	if err != nil {
		r.logger.Warn("notification delivery failed",
			zap.String("task_id", t.ID.String()),
			zap.Error(err),
		)
	}
}
