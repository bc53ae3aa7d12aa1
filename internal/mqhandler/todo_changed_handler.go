package mqhandler

import (
	"context"
	"encoding/json"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/internal/identity"
	"eztodo/internal/model"
	"eztodo/internal/reminder"
	"eztodo/pkg/logger"
	"eztodo/pkg/rbac"
	"eztodo/pkg/trace"
	"eztodo/pkg/util"

	"go.uber.org/zap"
)

const todoChangedHandlerName = "todo_changed"

// Deduper 防止同一事件被重复处理
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, eventID string) bool
	Release(ctx context.Context, handler string, eventID string)
}

// GrantChecker 判断用户是否已授权通知
type GrantChecker interface {
	Granted(ctx context.Context, userID int) (bool, error)
}

// TodoLister 列出 context 中调用方的 todo
type TodoLister interface {
	ListForUser(ctx context.Context) ([]model.Todo, error)
}

// Syncer 对调用方执行一次提醒对账
type Syncer interface {
	Sync(ctx context.Context, todos []model.Todo) (reminder.Result, error)
}

// TodoChangedHandler 在 todo 变更后为该用户重新对账提醒
type TodoChangedHandler struct {
	todos   TodoLister
	devices GrantChecker
	syncer  Syncer
	deduper Deduper
	logger  *zap.Logger
}

func NewTodoChangedHandler(
	todos TodoLister,
	devices GrantChecker,
	syncer Syncer,
	deduper Deduper,
	logger *zap.Logger,
) *TodoChangedHandler {
	return &TodoChangedHandler{
		todos:   todos,
		devices: devices,
		syncer:  syncer,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *TodoChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.TodoChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID <= 0 {
		// 坏消息重试也不会成功，直接 ack
		h.logger.Error("Invalid TodoChangedPayload, dropping",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return nil
	}

	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.Int("user_id", p.UserID),
		zap.String("todo_id", p.TodoID),
		zap.String("operation", p.Operation),
	)

	if p.EventID != "" && !h.deduper.AcquireOnce(ctx, todoChangedHandlerName, p.EventID) {
		return nil
	}

	granted, err := h.devices.Granted(ctx, p.UserID)
	if err != nil {
		return h.fail(ctx, log, p.EventID, "Granted", err)
	}
	if !granted {
		log.Debug("Notifications not initialized for user, skip reconciliation")
		return nil
	}

	ctx = identity.WithUser(ctx, p.UserID, rbac.RoleUser)
	todos, err := h.todos.ListForUser(ctx)
	if err != nil {
		return h.fail(ctx, log, p.EventID, "ListForUser", err)
	}

	res, err := h.syncer.Sync(ctx, todos)
	if err != nil {
		return h.fail(ctx, log, p.EventID, "Sync", err)
	}

	log.Info("Reminders reconciled after todo change",
		zap.Int("scheduled", res.Scheduled),
		zap.Int("canceled", res.Canceled),
		zap.Int("failed", res.Failed),
	)
	return nil
}

// fail 可重试的错误释放去重标记并 nack，其余直接 ack
func (h *TodoChangedHandler) fail(ctx context.Context, log *zap.Logger, eventID, op string, err error) error {
	retryable, errType := util.IsRetryableError(err)
	log.Error("Todo changed handling failed",
		zap.String("op", op),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	if !retryable {
		return nil
	}
	if eventID != "" {
		h.deduper.Release(ctx, todoChangedHandlerName, eventID)
	}
	return err
}
