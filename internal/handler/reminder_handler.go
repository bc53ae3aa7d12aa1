package handler

import (
	"errors"
	"net/http"

	"eztodo/internal/reminder"
	"eztodo/internal/service/todo"
	"eztodo/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReminderHandler struct {
	todoService *todo.Service
	reconciler  *reminder.Reconciler
	logger      *zap.Logger
}

func NewReminderHandler(todoService *todo.Service, reconciler *reminder.Reconciler, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{todoService: todoService, reconciler: reconciler, logger: logger}
}

// Sync handles POST /reminders/sync
func (h *ReminderHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()
	todos, err := h.todoService.ListForUser(ctx)
	if errors.Is(err, todo.ErrUnauthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to list todos for sync", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list todos"})
		return
	}

	res, err := h.reconciler.Sync(ctx, todos)
	switch {
	case errors.Is(err, reminder.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, util.ErrLockNotAcquired):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminder sync already in progress"})
		return
	case err != nil:
		h.logger.Error("Reminder sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync reminders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}
