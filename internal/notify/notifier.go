package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"eztodo/internal/identity"
	"eztodo/internal/model"
	"eztodo/internal/reminder"

	"go.uber.org/zap"
)

// Android 提醒通道
const (
	AndroidChannelID   = "todo-reminders"
	AndroidChannelName = "Task reminders"
	ImportanceMax      = "max"
)

// AndroidVibrationPattern 振动节奏（毫秒）
var AndroidVibrationPattern = []int{250, 250, 250}

var (
	// ErrNoIdentity context 中没有调用方身份
	ErrNoIdentity = errors.New("notify: no caller identity")
	// ErrUnsupportedPlatform 未知平台
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// NotificationStore 持久化待投递提醒
type NotificationStore interface {
	Insert(ctx context.Context, n *model.ScheduledNotification) (string, error)
	Cancel(ctx context.Context, userID int, id string) error
	ListPending(ctx context.Context, userID int) ([]model.ScheduledNotification, error)
}

// DeviceStore 持久化设备登记
type DeviceStore interface {
	Upsert(ctx context.Context, d *model.Device) error
}

// Notifier 把提醒写入 scheduled_notifications，由 Dispatcher 到点投递
type Notifier struct {
	notifications NotificationStore
	devices       DeviceStore
	logger        *zap.Logger
}

func NewNotifier(notifications NotificationStore, devices DeviceStore, logger *zap.Logger) *Notifier {
	return &Notifier{notifications: notifications, devices: devices, logger: logger}
}

var _ reminder.Notifier = (*Notifier)(nil)

// Schedule 为调用方登记一条提醒，返回 handle
func (n *Notifier) Schedule(ctx context.Context, rn reminder.Notification) (string, error) {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return "", ErrNoIdentity
	}
	handle, err := n.notifications.Insert(ctx, &model.ScheduledNotification{
		UserID: userID,
		Title:  rn.Title,
		Body:   rn.Body,
		FireAt: rn.FireAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("schedule notification: %w", err)
	}
	n.logger.Debug("Notification scheduled",
		zap.String("notification_id", handle),
		zap.Int("user_id", userID),
		zap.Time("fire_at", rn.FireAt),
	)
	return handle, nil
}

// Cancel 取消一条尚未投递的提醒；已投递或未知的 handle 视为成功
func (n *Notifier) Cancel(ctx context.Context, handle string) error {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return ErrNoIdentity
	}
	if err := n.notifications.Cancel(ctx, userID, handle); err != nil {
		return fmt.Errorf("cancel notification: %w", err)
	}
	return nil
}

// Pending 返回调用方尚未投递的提醒
func (n *Notifier) Pending(ctx context.Context) ([]model.ScheduledNotification, error) {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return nil, ErrNoIdentity
	}
	items, err := n.notifications.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return items, nil
}

// Initialize 登记调用方设备并返回是否已授权；android 设备同时注册提醒通道
func (n *Notifier) Initialize(ctx context.Context, d model.Device) (bool, error) {
	userID, ok := identity.UserID(ctx)
	if !ok {
		return false, ErrNoIdentity
	}

	d.UserID = userID
	d.Platform = strings.ToLower(strings.TrimSpace(d.Platform))
	switch d.Platform {
	case "android":
		d.ChannelID = AndroidChannelID
		d.ChannelName = AndroidChannelName
		d.Importance = ImportanceMax
		d.VibrationMillis = append([]int(nil), AndroidVibrationPattern...)
	case "ios", "web":
		d.ChannelID, d.ChannelName, d.Importance, d.VibrationMillis = "", "", "", nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, d.Platform)
	}

	if err := n.devices.Upsert(ctx, &d); err != nil {
		return false, fmt.Errorf("register device: %w", err)
	}
	if !d.Granted {
		n.logger.Info("Notification permission not granted", zap.Int("user_id", userID))
	}
	return d.Granted, nil
}
