package mq

import "time"

// 路由键
const (
	RoutingTodoChanged = "todo.changed"
	RoutingReminderDue = "reminder.due"
)

// TodoChangedPayload 在 todo 发生任何变更后发布，驱动提醒对账
type TodoChangedPayload struct {
	EventID    string    `json:"event_id"`
	UserID     int       `json:"user_id"`
	TodoID     string    `json:"todo_id"`
	Operation  string    `json:"operation"` // create / update / toggle / delete
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReminderDuePayload 在提醒到达触发时间时发布，由发送端推送给用户
type ReminderDuePayload struct {
	NotificationID string    `json:"notification_id"`
	UserID         int       `json:"user_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	FireAt         time.Time `json:"fire_at"`
	TraceID        string    `json:"trace_id,omitempty"`
}
