package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	mqcontracts "eztodo/contracts/mq"
	"eztodo/internal/model"
	"eztodo/pkg/circuitbreaker"
	"eztodo/pkg/trace"

	"go.uber.org/zap"
)

// StatusError 推送网关返回的非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.Code, e.Body)
}

// HTTPStatus 供错误分类器判断是否可重试
func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// DeviceLookup 查询用户的设备登记
type DeviceLookup interface {
	FindByUser(ctx context.Context, userID int) (*model.Device, error)
}

type pushMessage struct {
	To             string `json:"to"`
	Platform       string `json:"platform"`
	ChannelID      string `json:"channel_id,omitempty"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	NotificationID string `json:"notification_id"`
}

// Sender 把到期提醒推送到推送网关
type Sender struct {
	webhookURL string
	devices    DeviceLookup
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewSender(webhookURL string, devices DeviceLookup, logger *zap.Logger) *Sender {
	cbConfig := circuitbreaker.DefaultConfig("push-gateway")
	cbConfig.FailureThreshold = 3
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Sender{
		webhookURL: webhookURL,
		devices:    devices,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		cb:     circuitbreaker.NewCircuitBreaker(cbConfig),
		logger: logger,
	}
}

// WithTimeout 设置单次推送请求的超时
func (s *Sender) WithTimeout(timeout time.Duration) *Sender {
	if timeout > 0 {
		s.httpClient.Timeout = timeout
	}
	return s
}

// Send 推送一条到期提醒。用户没有已授权设备时直接丢弃；未配置网关时只记录日志
func (s *Sender) Send(ctx context.Context, p mqcontracts.ReminderDuePayload) error {
	device, err := s.devices.FindByUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("find device: %w", err)
	}
	if device == nil || !device.Granted {
		s.logger.Info("No granted device, dropping reminder",
			zap.String("notification_id", p.NotificationID),
			zap.Int("user_id", p.UserID),
		)
		return nil
	}

	if s.webhookURL == "" {
		s.logger.Info("Push gateway not configured, reminder logged only",
			zap.String("notification_id", p.NotificationID),
			zap.Int("user_id", p.UserID),
			zap.String("title", p.Title),
		)
		return nil
	}

	msg := pushMessage{
		To:             device.PushToken,
		Platform:       device.Platform,
		ChannelID:      device.ChannelID,
		Title:          p.Title,
		Body:           p.Body,
		NotificationID: p.NotificationID,
	}
	return s.cb.Execute(func() error {
		return s.post(ctx, msg)
	})
}

func (s *Sender) post(ctx context.Context, msg pushMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}
