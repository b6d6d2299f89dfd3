package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/artigen/server/internal/utils/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles account balance HTTP requests.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the account routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/balance", h.GetBalance)
	r.GET("/history", h.GetHistory)
}

// GetBalance returns the caller's token balance.
func (h *Handler) GetBalance(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "authentication required"}})
		return
	}

	account, err := h.service.GetOrCreateAccount(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to load account",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to load account"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": account.ID,
		"balance":    account.Balance,
	})
}

// GetHistory returns the caller's most recent ledger entries.
func (h *Handler) GetHistory(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "authentication required"}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.service.History(c.Request.Context(), accountID, limit)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "account not found"}})
			return
		}
		h.logger.Error("failed to list ledger entries",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to list history"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
