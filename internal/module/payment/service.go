package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/artigen/server/internal/module/ledger"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// ErrInvalidEvent means a webhook payload failed parsing or signature
// verification.
var ErrInvalidEvent = errors.New("invalid payment event")

// TokenCreditor is the slice of the token ledger the payment module
// depends on.
type TokenCreditor interface {
	GetOrCreateAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error)
	Credit(ctx context.Context, accountID uuid.UUID, amount int64, kind ledger.EntryKind, reason string) (*ledger.Entry, error)
}

// Service turns successful Stripe payments into token credits.
type Service struct {
	repo          Repository
	tokens        TokenCreditor
	webhookSecret string
	logger        *zap.Logger
}

// NewService creates a new payment service.
func NewService(repo Repository, tokens TokenCreditor, webhookSecret string, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		tokens:        tokens,
		webhookSecret: webhookSecret,
		logger:        logger.Named("payment"),
	}
}

// ParseEvent verifies and decodes a raw Stripe webhook payload. With a
// webhook secret configured the Stripe signature is mandatory.
func (s *Service) ParseEvent(payload []byte, signature string) (*stripe.Event, error) {
	if s.webhookSecret != "" {
		event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return &event, nil
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return &event, nil
}

// HandleEvent processes one Stripe event. Events seen before are
// no-ops; the event row is written before processing so a redelivery
// racing the first attempt cannot double-credit.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	exists, err := s.repo.Exists(ctx, event.ID)
	if err != nil {
		s.logger.Error("failed to check event existence", zap.Error(err))
		// Better to risk reprocessing than to drop a payment.
	}
	if exists {
		s.logger.Info("webhook event already processed", zap.String("event_id", event.ID))
		return nil
	}

	if err := s.repo.Create(ctx, &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: string(event.Data.Raw),
	}); err != nil {
		return fmt.Errorf("store webhook event: %w", err)
	}

	var processErr error
	switch event.Type {
	case "payment_intent.succeeded":
		processErr = s.handlePaymentSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		s.logPaymentFailed(event)
	default:
		s.logger.Debug("unhandled webhook event type", zap.String("type", string(event.Type)))
	}

	if err := s.repo.MarkProcessed(ctx, event.ID, processErr); err != nil {
		s.logger.Error("failed to mark event processed", zap.Error(err))
	}
	return processErr
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("unmarshal payment intent: %w", err)
	}

	accountID, err := uuid.Parse(pi.Metadata["account_id"])
	if err != nil {
		return fmt.Errorf("payment intent %s has no valid account_id metadata", pi.ID)
	}
	tokens, err := strconv.ParseInt(pi.Metadata["tokens"], 10, 64)
	if err != nil || tokens <= 0 {
		return fmt.Errorf("payment intent %s has no valid tokens metadata", pi.ID)
	}

	if _, err := s.tokens.GetOrCreateAccount(ctx, accountID); err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	reason := fmt.Sprintf("stripe payment %s", pi.ID)
	if _, err := s.tokens.Credit(ctx, accountID, tokens, ledger.EntryKindPurchase, reason); err != nil {
		return fmt.Errorf("credit purchase: %w", err)
	}

	s.logger.Info("token purchase credited",
		zap.String("payment_intent_id", pi.ID),
		zap.String("account_id", accountID.String()),
		zap.Int64("tokens", tokens),
		zap.Int64("amount_cents", pi.Amount),
	)
	return nil
}

func (s *Service) logPaymentFailed(event *stripe.Event) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		s.logger.Error("failed to unmarshal failed payment intent", zap.Error(err))
		return
	}
	s.logger.Warn("payment failed",
		zap.String("payment_intent_id", pi.ID),
		zap.String("account_id", pi.Metadata["account_id"]),
		zap.Int64("amount_cents", pi.Amount),
	)
}
