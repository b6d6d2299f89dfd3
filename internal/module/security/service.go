package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Suspicious-activity thresholds.
const (
	failedOpsWindow    = time.Hour
	failedOpsThreshold = 20
	burstOpsWindow     = 5 * time.Minute
	burstOpsThreshold  = 50
	// suspicionBlock is how long an account flagged as suspicious
	// stays blocked.
	suspicionBlock = 30 * time.Minute
)

// Config holds the admission-gate tunables.
type Config struct {
	RateLimit       int
	RateLimitWindow time.Duration
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		RateLimit:       10,
		RateLimitWindow: 60 * time.Second,
	}
}

// Service is the admission-control gate that runs before any
// money-equivalent operation. All of its checks are advisory: none of
// them touch the ledger, and any failure short-circuits before a debit.
type Service struct {
	validator *PromptValidator
	limiter   Limiter
	audit     AuditRepository
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a new security service.
func NewService(validator *PromptValidator, limiter Limiter, audit AuditRepository, cfg Config, logger *zap.Logger) *Service {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultConfig().RateLimit
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultConfig().RateLimitWindow
	}
	return &Service{
		validator: validator,
		limiter:   limiter,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.Named("security"),
	}
}

// ValidatePrompt validates a generation prompt.
func (s *Service) ValidatePrompt(_ context.Context, text string) ValidationResult {
	return s.validator.Validate(text)
}

// CheckRateLimit records one hit for (account, action) and reports
// whether the caller is within the fixed window.
func (s *Service) CheckRateLimit(ctx context.Context, accountID uuid.UUID, action string) (bool, error) {
	key := accountID.String() + ":" + action
	return s.limiter.Allow(ctx, key, s.cfg.RateLimit, s.cfg.RateLimitWindow)
}

// CheckSuspiciousActivity flags accounts with too many failed or too
// many total recent operations, based on audit counts.
func (s *Service) CheckSuspiciousActivity(ctx context.Context, accountID uuid.UUID) (SuspicionResult, error) {
	now := time.Now()

	failed, err := s.audit.CountSince(ctx, accountID, now.Add(-failedOpsWindow), true)
	if err != nil {
		return SuspicionResult{}, fmt.Errorf("count failed operations: %w", err)
	}
	if failed > failedOpsThreshold {
		return SuspicionResult{Suspicious: true, Reason: "too many failed operations"}, nil
	}

	total, err := s.audit.CountSince(ctx, accountID, now.Add(-burstOpsWindow), false)
	if err != nil {
		return SuspicionResult{}, fmt.Errorf("count operations: %w", err)
	}
	if total > burstOpsThreshold {
		return SuspicionResult{Suspicious: true, Reason: "operation burst"}, nil
	}

	return SuspicionResult{}, nil
}

// BlockUser blocks an account for the given duration.
func (s *Service) BlockUser(ctx context.Context, accountID uuid.UUID, reason string, d time.Duration) error {
	s.logger.Warn("blocking account",
		zap.String("account_id", accountID.String()),
		zap.String("reason", reason),
		zap.Duration("duration", d),
	)
	return s.limiter.Block(ctx, accountID.String(), reason, d)
}

// IsBlocked reports whether an account is currently blocked. Expired
// blocks self-clear on lookup.
func (s *Service) IsBlocked(ctx context.Context, accountID uuid.UUID) (bool, string, error) {
	return s.limiter.IsBlocked(ctx, accountID.String())
}

// RecordAudit appends one audit entry. Audit failures are logged and
// swallowed so they never break the calling operation.
func (s *Service) RecordAudit(ctx context.Context, accountID uuid.UUID, action string, success bool, metadata string) {
	entry := &AuditEntry{
		AccountID: accountID,
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record audit entry",
			zap.String("account_id", accountID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// Admit runs the full gate chain for one generation attempt: block
// check, rate limit, prompt validation, suspicion scoring. The first
// failure wins and is returned as a taxonomy error.
func (s *Service) Admit(ctx context.Context, accountID uuid.UUID, action, prompt string) error {
	blocked, reason, err := s.IsBlocked(ctx, accountID)
	if err != nil {
		return fmt.Errorf("block lookup: %w", err)
	}
	if blocked {
		return fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	allowed, err := s.CheckRateLimit(ctx, accountID, action)
	if err != nil {
		return fmt.Errorf("rate limit lookup: %w", err)
	}
	if !allowed {
		return ErrRateLimited
	}

	if result := s.validator.Validate(prompt); !result.Valid {
		return fmt.Errorf("%w: %s", ErrValidationFailed, result.Reason)
	}

	suspicion, err := s.CheckSuspiciousActivity(ctx, accountID)
	if err != nil {
		return fmt.Errorf("suspicion check: %w", err)
	}
	if suspicion.Suspicious {
		if err := s.BlockUser(ctx, accountID, suspicion.Reason, suspicionBlock); err != nil {
			s.logger.Error("failed to block suspicious account", zap.Error(err))
		}
		return fmt.Errorf("%w: %s", ErrBlocked, suspicion.Reason)
	}

	return nil
}
