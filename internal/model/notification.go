package model

import "time"

// 提醒投递状态
const (
	NotificationPending    = "pending"
	NotificationCanceled   = "canceled"
	NotificationDispatched = "dispatched"
)

// ScheduledNotification 是一条待投递的本地提醒，ID 即对外的 handle
type ScheduledNotification struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fire_at"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Device 记录用户的通知权限和投递通道
type Device struct {
	UserID          int       `json:"user_id"`
	Platform        string    `json:"platform"` // ios / android / web
	PushToken       string    `json:"push_token,omitempty"`
	Granted         bool      `json:"granted"`
	ChannelID       string    `json:"channel_id,omitempty"`
	ChannelName     string    `json:"channel_name,omitempty"`
	Importance      string    `json:"importance,omitempty"`
	VibrationMillis []int     `json:"vibration_pattern,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
