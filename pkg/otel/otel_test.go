package otel

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  float64
	}{
		{"unset uses default", 0, defaultSampleRatio},
		{"negative uses default", -1, defaultSampleRatio},
		{"configured", 0.5, 0.5},
		{"clamped to always", 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Config{SampleRatio: tt.ratio}).sampleRatio(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAttributes(t *testing.T) {
	attrs := Config{ServiceName: "eztodo-api", ServiceVersion: "1.0.0", Environment: "production"}.attributes()
	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["service.name"] != "eztodo-api" || got["deployment.environment"] != "production" {
		t.Errorf("unexpected resource attributes: %v", got)
	}

	if n := len(Config{ServiceName: "eztodo-worker"}.attributes()); n != 2 {
		t.Errorf("expected no environment attribute when unset, got %d attributes", n)
	}
}

func TestDisabledInitUsesNoopTracer(t *testing.T) {
	shutdown, err := Init(Config{ServiceName: "eztodo-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown()

	_, span := StartSpan(context.Background(), "op")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("expected a noop span when tracing is disabled")
	}
}
