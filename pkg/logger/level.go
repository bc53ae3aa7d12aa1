package logger

import (
	"os"

	"go.uber.org/zap/zapcore"
)

func levelFromEnv() *zapcore.Level {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return nil
	}
	return &lvl
}
