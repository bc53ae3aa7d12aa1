package httpserver

import (
	"context"
	"net/http"
	"time"

	"eztodo/internal/handler"
	"eztodo/pkg/otel"
	"eztodo/pkg/rbac"
	"eztodo/pkg/trace"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

// Handlers 汇总路由用到的 handler
type Handlers struct {
	Auth         *handler.AuthHandler
	Todo         *handler.TodoHandler
	Notification *handler.NotificationHandler
	Reminder     *handler.ReminderHandler
	Admin        *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, checks map[string]ReadinessCheck, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(trace.Middleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogger(logger))

	// Health endpoints
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	r.GET("/healthz", health)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", health)
	r.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		read := RequirePermission(rbac.PermissionReadTodo)
		write := RequirePermission(rbac.PermissionWriteTodo)

		auth.GET("/todos", read, h.Todo.List)
		auth.POST("/todos", write, h.Todo.Create)
		auth.GET("/todos/:id", read, h.Todo.Get)
		auth.PATCH("/todos/:id", write, h.Todo.Update)
		auth.POST("/todos/:id/toggle", write, h.Todo.Toggle)
		auth.DELETE("/todos/:id", write, h.Todo.Delete)

		manage := RequirePermission(rbac.PermissionManageNoti)
		auth.GET("/notifications", manage, h.Notification.List)
		auth.POST("/notifications/init", manage, h.Notification.Init)
		auth.POST("/reminders/sync", manage, h.Reminder.Sync)

		admin := auth.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}
