package logger

import (
	"context"
	"os"

	"eztodo/pkg/trace"

	"go.uber.org/zap"
)

// NewLogger 默认输出 JSON；LOG_FORMAT=console 时使用开发格式，LOG_LEVEL 调整级别
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if os.Getenv("LOG_FORMAT") == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := levelFromEnv(); lvl != nil {
		cfg.Level = zap.NewAtomicLevelAt(*lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
