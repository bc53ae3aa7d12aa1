package db

import (
	"testing"
	"time"

	"eztodo/pkg/config"

	"go.uber.org/zap"
)

func TestOperationOf(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT id FROM todos", "select"},
		{"\n        UPDATE todos SET text = $1", "update"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := operationOf(tt.sql); got != tt.want {
			t.Errorf("operationOf(%q) = %q, want %q", tt.sql, got, tt.want)
		}
	}
}

func TestNewSlowQueryTracerDefaultThreshold(t *testing.T) {
	tr := NewSlowQueryTracer(zap.NewNop(), 0)
	if tr.slowThreshold != 100*time.Millisecond {
		t.Errorf("expected 100ms default, got %v", tr.slowThreshold)
	}
}

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(config.DBConfig{
		Host:     "db",
		Port:     5432,
		User:     "todo",
		Password: "p@ss/word",
		Name:     "eztodo",
	})
	want := "postgres://todo:p%40ss%2Fword@db:5432/eztodo?sslmode=disable"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
