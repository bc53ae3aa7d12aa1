package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Todo 变更计数
	TodoMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todo_mutation_count",
			Help: "Total number of todo mutations",
		},
		[]string{"operation"}, // operation: create, update, toggle, delete
	)

	// 提醒对账次数
	ReminderSyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_sync_count",
			Help: "Total number of reminder reconciliation passes",
		},
	)

	// 提醒操作计数
	ReminderActionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_action_count",
			Help: "Total number of reminder schedule/cancel calls",
		},
		[]string{"action", "status"}, // action: schedule, cancel; status: success, failed
	)

	// 提醒投递计数
	ReminderDeliveredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_delivered_count",
			Help: "Total number of reminders delivered to the push gateway",
		},
		[]string{"status"}, // status: success, failed, dlq
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	SlowQueryCount.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementTodoMutation 增加 todo 变更计数
func IncrementTodoMutation(operation string) {
	TodoMutationCount.WithLabelValues(operation).Inc()
}

// IncrementReminderSync 增加对账次数
func IncrementReminderSync() {
	ReminderSyncCount.Inc()
}

// IncrementReminderAction 增加提醒操作计数
func IncrementReminderAction(action string, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	ReminderActionCount.WithLabelValues(action, status).Inc()
}

// IncrementReminderDelivered 增加提醒投递计数
func IncrementReminderDelivered(status string) {
	ReminderDeliveredCount.WithLabelValues(status).Inc()
}
