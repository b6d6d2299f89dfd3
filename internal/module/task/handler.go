package task

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/artigen/server/internal/module/ledger"
	"github.com/artigen/server/internal/module/security"
	"github.com/artigen/server/internal/module/task/provider"
	"github.com/artigen/server/internal/utils/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles generation task HTTP requests.
type Handler struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewHandler creates a new task handler.
func NewHandler(orchestrator *Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// RegisterRoutes registers the task routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateTask)
	r.GET("", h.ListTasks)
	r.GET("/:id", h.GetTask)
}

// CreateTask admits, charges, and submits one generation task.
func (h *Handler) CreateTask(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "authentication required"}})
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
		return
	}

	t, err := h.orchestrator.CreateTask(c.Request.Context(), &CreateRequest{
		AccountID: accountID,
		Provider:  req.Provider,
		Operation: req.Operation,
		Prompt:    req.Prompt,
		Params:    req.Params,
	})
	if err != nil {
		h.writeCreateError(c, accountID, err)
		return
	}

	c.JSON(http.StatusAccepted, toTaskResponse(t))
}

// GetTask returns one of the caller's tasks.
func (h *Handler) GetTask(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "authentication required"}})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "invalid task id"}})
		return
	}

	t, err := h.orchestrator.GetTask(c.Request.Context(), accountID, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "task not found"}})
			return
		}
		h.logger.Error("failed to load task", zap.String("task_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to load task"}})
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(t))
}

// ListTasks returns the caller's most recent tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "authentication required"}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	tasks, err := h.orchestrator.ListTasks(c.Request.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.String("account_id", accountID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to list tasks"}})
		return
	}

	out := make([]*TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

// writeCreateError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeCreateError(c *gin.Context, accountID uuid.UUID, err error) {
	switch {
	case errors.Is(err, provider.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "UNKNOWN_PROVIDER", "message": err.Error()}})
	case errors.Is(err, ledger.ErrUnpricedOperation):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "UNPRICED_OPERATION", "message": err.Error()}})
	case errors.Is(err, security.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_FAILED", "message": err.Error()}})
	case errors.Is(err, security.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{"code": "RATE_LIMITED", "message": "rate limit exceeded, try again later"}})
	case errors.Is(err, security.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": "BLOCKED", "message": "account is temporarily blocked"}})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": gin.H{"code": "INSUFFICIENT_BALANCE", "message": "not enough tokens for this operation"}})
	case errors.Is(err, provider.ErrRejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": gin.H{"code": "PROVIDER_REJECTED", "message": err.Error()}})
	case errors.Is(err, provider.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "PROVIDER_UNAVAILABLE", "message": "generation provider is unavailable, tokens were refunded"}})
	default:
		h.logger.Error("task creation failed",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "INTERNAL", "message": "failed to create task"}})
	}
}
