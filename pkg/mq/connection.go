package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "events"

	// trace_id 在消息 header 中的键名
	traceHeader = "x-trace-id"
)

// 启动时 broker 可能还没就绪，按指数退避重试
var (
	dialAttempts = 5
	dialBackoff  = time.Second
	dial         = amqp091.Dial
)

// NewConnection 连接 RabbitMQ，失败时重试 dialAttempts 次
func NewConnection(url string) (*amqp091.Connection, error) {
	var lastErr error
	wait := dialBackoff
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < dialAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, lastErr)
}

// DeclareExchange 声明业务事件的 topic exchange
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// closeOnError 初始化失败时释放 channel 和连接
func closeOnError(ch *amqp091.Channel, conn *amqp091.Connection) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
