package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/pkg/logger"
	"eztodo/pkg/metrics"
	"eztodo/pkg/trace"
	"eztodo/pkg/util"

	"go.uber.org/zap"
)

const (
	reminderDueHandlerName = "reminder_due"
	maxDeliveryRetries     = 5
)

// Pusher 把提醒推送给用户
type Pusher interface {
	Send(ctx context.Context, p mqcontracts.ReminderDuePayload) error
}

// RetryCounter 按消息记录重试次数
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterPublisher 把无法投递的消息写入 DLQ
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError, failedAt string) error
}

// ReminderDueHandler 投递到期提醒，多次失败后转入 DLQ
type ReminderDueHandler struct {
	pusher       Pusher
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	deduper      Deduper
	maxRetries   int64
	logger       *zap.Logger
}

func NewReminderDueHandler(
	pusher Pusher,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	deduper Deduper,
	logger *zap.Logger,
) *ReminderDueHandler {
	return &ReminderDueHandler{
		pusher:       pusher,
		retryCounter: retryCounter,
		dlq:          dlq,
		deduper:      deduper,
		maxRetries:   maxDeliveryRetries,
		logger:       logger,
	}
}

func (h *ReminderDueHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ReminderDuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Invalid ReminderDuePayload, sending to DLQ",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		h.deadLetter(raw, err)
		return nil
	}

	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("notification_id", p.NotificationID),
		zap.Int("user_id", p.UserID),
	)

	// outbox 至少一次投递，replay 也会重发同一条提醒
	if p.NotificationID != "" && !h.deduper.AcquireOnce(ctx, reminderDueHandlerName, p.NotificationID) {
		return nil
	}

	retryKey := util.FormatRetryKey(reminderDueHandlerName, p.NotificationID)
	err := h.pusher.Send(ctx, p)
	if err == nil {
		_ = h.retryCounter.Reset(ctx, retryKey)
		metrics.IncrementReminderDelivered("success")
		log.Info("Reminder delivered")
		return nil
	}

	retryCount, counterErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if counterErr != nil {
		log.Warn("Failed to increment retry counter", zap.Error(counterErr))
	}
	retryable, errType := util.IsRetryableError(err)
	log.Warn("Reminder delivery failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry", retryCount),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, h.maxRetries, retryable) {
		metrics.IncrementReminderDelivered("failed")
		if p.NotificationID != "" {
			h.deduper.Release(ctx, reminderDueHandlerName, p.NotificationID)
		}
		return err
	}

	h.deadLetter(raw, err)
	_ = h.retryCounter.Reset(ctx, retryKey)
	return nil
}

func (h *ReminderDueHandler) deadLetter(raw []byte, cause error) {
	metrics.IncrementReminderDelivered("dlq")
	if err := h.dlq.PublishToDLQ(mqcontracts.RoutingReminderDue, raw, cause.Error(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		h.logger.Error("Failed to publish reminder to DLQ", zap.Error(err))
	}
}
