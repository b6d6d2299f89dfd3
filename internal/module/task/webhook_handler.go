package task

import (
	"errors"
	"io"
	"net/http"

	"github.com/artigen/server/internal/module/task/provider"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Artigen-Signature"

// WebhookHandler receives provider completion webhooks.
type WebhookHandler struct {
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler *Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/generation/:provider", h.HandleGenerationWebhook)
}

// HandleGenerationWebhook verifies and applies one provider webhook.
// Replays of already-applied updates return 200 so providers stop
// redelivering; updates that cannot correlate to a task are 404 and
// never create one.
func (h *WebhookHandler) HandleGenerationWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_PAYLOAD", "message": "failed to read body"}})
		return
	}

	if err := h.reconciler.VerifySignature(body, c.GetHeader(SignatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected",
			zap.String("provider", providerName),
			zap.String("remote_addr", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "INVALID_SIGNATURE", "message": "signature verification failed"}})
		return
	}

	err = h.reconciler.HandleInboundUpdate(c.Request.Context(), providerName, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "UNKNOWN_PROVIDER", "message": "unknown provider"}})
	case errors.Is(err, provider.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_PAYLOAD", "message": err.Error()}})
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "no task for this update"}})
	default:
		h.logger.Error("webhook reconciliation failed",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to apply update"}})
	}
}
