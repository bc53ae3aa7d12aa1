package handler

import (
	"errors"
	"net/http"

	"eztodo/internal/service/todo"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TodoHandler struct {
	todoService *todo.Service
	logger      *zap.Logger
}

func NewTodoHandler(todoService *todo.Service, logger *zap.Logger) *TodoHandler {
	return &TodoHandler{todoService: todoService, logger: logger}
}

// List handles GET /todos
func (h *TodoHandler) List(c *gin.Context) {
	todos, err := h.todoService.ListForUser(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

// Create handles POST /todos
func (h *TodoHandler) Create(c *gin.Context) {
	var req todo.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.todoService.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"todo": t})
}

// Get handles GET /todos/:id，不存在时返回 {"todo": null}
func (h *TodoHandler) Get(c *gin.Context) {
	t, err := h.todoService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"todo": t})
}

// Update handles PATCH /todos/:id
func (h *TodoHandler) Update(c *gin.Context) {
	var req todo.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.todoService.Update(c.Request.Context(), c.Param("id"), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Toggle handles POST /todos/:id/toggle
func (h *TodoHandler) Toggle(c *gin.Context) {
	var req struct {
		Completed *bool `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Completed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed is required"})
		return
	}

	if err := h.todoService.Toggle(c.Request.Context(), c.Param("id"), *req.Completed); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /todos/:id
func (h *TodoHandler) Delete(c *gin.Context) {
	if err := h.todoService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TodoHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, todo.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, todo.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, todo.ErrEmptyText), errors.Is(err, todo.ErrInvalidDueDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Todo request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
