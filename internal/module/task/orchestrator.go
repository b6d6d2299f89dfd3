package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artigen/server/internal/module/security"
	"github.com/artigen/server/internal/module/task/provider"
	"github.com/artigen/server/internal/utils/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gate is the slice of the security gate the task module depends on.
type Gate interface {
	Admit(ctx context.Context, accountID uuid.UUID, action, prompt string) error
	RecordAudit(ctx context.Context, accountID uuid.UUID, action string, success bool, metadata string)
}

// Config holds orchestrator tunables.
type Config struct {
	// PollInterval is the delay between status polls for one task.
	PollInterval time.Duration
	// MaxPollAttempts bounds the poll loop; exhausting it leaves the
	// task processing and surfaces ErrPollTimeout.
	MaxPollAttempts int
	// MaxConcurrentPolls caps poll goroutines across all tasks.
	MaxConcurrentPolls int
	// CallbackBaseURL is the public base URL providers deliver
	// webhooks to.
	CallbackBaseURL string
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       3 * time.Second,
		MaxPollAttempts:    30,
		MaxConcurrentPolls: 16,
	}
}

// Orchestrator runs the task lifecycle: admit, debit, persist, submit,
// and drive polling for providers that do not push status updates.
// Tokens are always settled before a provider is contacted, and every
// failure after the debit is compensated with a refund.
type Orchestrator struct {
	repo       Repository
	tokens     Ledger
	gate       Gate
	registry   *provider.Registry
	reconciler *Reconciler
	cfg        Config
	metrics    *metrics.Metrics
	logger     *zap.Logger

	pollSem  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator creates a new task orchestrator.
func NewOrchestrator(repo Repository, tokens Ledger, gate Gate, registry *provider.Registry, reconciler *Reconciler, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.MaxConcurrentPolls <= 0 {
		cfg.MaxConcurrentPolls = 16
	}
	return &Orchestrator{
		repo:       repo,
		tokens:     tokens,
		gate:       gate,
		registry:   registry,
		reconciler: reconciler,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Named("orchestrator"),
		pollSem:    make(chan struct{}, cfg.MaxConcurrentPolls),
		stopCh:     make(chan struct{}),
	}
}

// CreateRequest is one generation submission from an account.
type CreateRequest struct {
	AccountID uuid.UUID
	Provider  string
	Operation string
	Prompt    string
	Params    map[string]any
}

// CreateTask admits, debits, persists, and submits one task. The debit
// happens before any provider call; rejection, unavailability, or a
// persistence failure after the debit refunds the full cost.
func (o *Orchestrator) CreateTask(ctx context.Context, req *CreateRequest) (*Task, error) {
	adapter, err := o.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	action := req.Provider + ":" + req.Operation
	if err := o.gate.Admit(ctx, req.AccountID, action, req.Prompt); err != nil {
		o.gate.RecordAudit(ctx, req.AccountID, action, false, err.Error())
		o.metrics.RecordAdmissionDenied(denialReason(err))
		return nil, err
	}

	cost, err := o.tokens.Cost(req.Provider, req.Operation)
	if err != nil {
		return nil, err
	}

	t := &Task{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Provider:  req.Provider,
		Operation: req.Operation,
		Prompt:    req.Prompt,
		Cost:      cost,
		Status:    StatusCreated,
	}

	if _, err := o.tokens.Debit(ctx, req.AccountID, cost, req.Provider, &t.ID); err != nil {
		return nil, err
	}

	if err := o.repo.Create(ctx, t); err != nil {
		o.refund(ctx, t, "task creation failed")
		return nil, fmt.Errorf("persist task: %w", err)
	}

	externalID, err := adapter.Submit(ctx, &provider.SubmitRequest{
		Operation:   req.Operation,
		Prompt:      req.Prompt,
		Params:      req.Params,
		CallbackURL: o.callbackURL(req.Provider),
	})
	if err != nil {
		o.abort(ctx, t, "provider submission failed", err)
		o.gate.RecordAudit(ctx, req.AccountID, action, false, err.Error())
		return nil, fmt.Errorf("submit to %s: %w", req.Provider, err)
	}

	if err := o.repo.MarkProcessing(ctx, t.ID, externalID); err != nil {
		o.abort(ctx, t, "task persistence failed", err)
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	t.ExternalID = &externalID
	t.Status = StatusProcessing

	o.gate.RecordAudit(ctx, req.AccountID, action, true, "")
	o.metrics.RecordTaskSubmitted(req.Provider, req.Operation)
	o.logger.Info("task submitted",
		zap.String("task_id", t.ID.String()),
		zap.String("account_id", req.AccountID.String()),
		zap.String("provider", req.Provider),
		zap.String("operation", req.Operation),
		zap.String("external_id", externalID),
		zap.Int64("cost", cost),
	)

	if !adapter.DeliversWebhooks() {
		o.startPolling(adapter, t)
	}
	return t, nil
}

// GetTask returns a task owned by the account. Tasks of other accounts
// are indistinguishable from missing ones.
func (o *Orchestrator) GetTask(ctx context.Context, accountID, id uuid.UUID) (*Task, error) {
	t, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.BelongsTo(accountID) {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// ListTasks returns the account's most recent tasks.
func (o *Orchestrator) ListTasks(ctx context.Context, accountID uuid.UUID, limit int) ([]*Task, error) {
	return o.repo.ListByAccount(ctx, accountID, limit)
}

// Resume restarts polling for processing tasks of poll-only providers.
// Called once at startup so tasks in flight across a restart still
// settle.
func (o *Orchestrator) Resume(ctx context.Context) error {
	for _, name := range o.registry.Names() {
		adapter, err := o.registry.Get(name)
		if err != nil {
			continue
		}
		if adapter.DeliversWebhooks() || !adapter.SupportsPolling() {
			continue
		}

		tasks, err := o.repo.ListProcessing(ctx, name)
		if err != nil {
			return fmt.Errorf("list processing tasks for %s: %w", name, err)
		}
		for _, t := range tasks {
			o.startPolling(adapter, t)
		}
		if len(tasks) > 0 {
			o.logger.Info("resumed polling",
				zap.String("provider", name),
				zap.Int("tasks", len(tasks)),
			)
		}
	}
	return nil
}

// Stop halts all poll loops and waits for them to drain.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// PollUntilTerminal polls one task until the provider reports a
// terminal status, then applies it through the reconciler. Exhausting
// the attempt budget returns ErrPollTimeout and leaves the task
// processing for a later Resume.
func (o *Orchestrator) PollUntilTerminal(ctx context.Context, adapter provider.Adapter, t *Task) error {
	if t.ExternalID == nil {
		return fmt.Errorf("task %s has no external id", t.ID)
	}
	externalID := *t.ExternalID

	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		if err := o.waitInterval(ctx); err != nil {
			return err
		}

		update, err := adapter.PollStatus(ctx, externalID)
		if err != nil {
			// Transient by assumption; the attempt budget bounds how
			// long a flapping provider is retried.
			o.logger.Warn("status poll failed",
				zap.String("task_id", t.ID.String()),
				zap.String("provider", t.Provider),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if !update.Status.IsTerminal() {
			continue
		}
		return o.reconciler.Apply(ctx, t.Provider, update)
	}

	o.logger.Warn("poll budget exhausted, task left processing",
		zap.String("task_id", t.ID.String()),
		zap.String("provider", t.Provider),
		zap.Int("attempts", o.cfg.MaxPollAttempts),
	)
	return ErrPollTimeout
}

func (o *Orchestrator) startPolling(adapter provider.Adapter, t *Task) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		select {
		case o.pollSem <- struct{}{}:
			defer func() { <-o.pollSem }()
		case <-o.stopCh:
			return
		}

		err := o.PollUntilTerminal(context.Background(), adapter, t)
		if err != nil && !errors.Is(err, ErrPollTimeout) && !errors.Is(err, context.Canceled) {
			o.logger.Error("poll loop ended with error",
				zap.String("task_id", t.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) waitInterval(ctx context.Context) error {
	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-o.stopCh:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort fails a task that will never run and returns its tokens. The
// transition and the refund commit in one transaction; on error the
// task stays non-terminal with its debit intact, to be settled later.
func (o *Orchestrator) abort(ctx context.Context, t *Task, reason string, cause error) {
	err := o.repo.Fail(ctx, t.ID, cause.Error(), func(tx *gorm.DB) error {
		_, err := o.tokens.RefundInTx(ctx, tx, t.AccountID, t.Cost, t.Provider, reason, &t.ID)
		return err
	})
	if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		o.logger.Error("task abort did not apply",
			zap.String("task_id", t.ID.String()),
			zap.String("account_id", t.AccountID.String()),
			zap.Int64("amount", t.Cost),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) refund(ctx context.Context, t *Task, reason string) {
	if _, err := o.tokens.Refund(ctx, t.AccountID, t.Cost, t.Provider, reason, &t.ID); err != nil {
		o.logger.Error("compensating refund did not apply",
			zap.String("task_id", t.ID.String()),
			zap.String("account_id", t.AccountID.String()),
			zap.Int64("amount", t.Cost),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, security.ErrBlocked):
		return "blocked"
	case errors.Is(err, security.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, security.ErrValidationFailed):
		return "validation_failed"
	default:
		return "error"
	}
}

func (o *Orchestrator) callbackURL(providerName string) string {
	if o.cfg.CallbackBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/webhooks/generation/%s", o.cfg.CallbackBaseURL, providerName)
}
