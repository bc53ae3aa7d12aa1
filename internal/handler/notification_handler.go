package handler

import (
	"errors"
	"net/http"

	"eztodo/internal/model"
	"eztodo/internal/notify"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifier *notify.Notifier
	logger   *zap.Logger
}

func NewNotificationHandler(notifier *notify.Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// Init handles POST /notifications/init
func (h *NotificationHandler) Init(c *gin.Context) {
	var req struct {
		Platform  string `json:"platform" binding:"required"`
		PushToken string `json:"push_token"`
		Granted   bool   `json:"granted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	granted, err := h.notifier.Initialize(c.Request.Context(), model.Device{
		Platform:  req.Platform,
		PushToken: req.PushToken,
		Granted:   req.Granted,
	})
	switch {
	case errors.Is(err, notify.ErrUnsupportedPlatform):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, notify.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Notification init failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": granted})
}

// List handles GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.notifier.Pending(c.Request.Context())
	if errors.Is(err, notify.ErrNoIdentity) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to list pending notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}
