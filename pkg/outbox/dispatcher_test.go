package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"eztodo/pkg/trace"

	"go.uber.org/zap"
)

type recordingPublisher struct {
	routingKey string
	payload    any
	traceID    string
	err        error
}

func (p *recordingPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	p.routingKey = routingKey
	p.payload = payload
	p.traceID = trace.FromContext(ctx)
	return p.err
}

func TestPublishEvent(t *testing.T) {
	t.Run("forwards raw payload with trace id", func(t *testing.T) {
		pub := &recordingPublisher{}
		event := &Event{
			ID:         1,
			RoutingKey: "todo.changed",
			Payload:    json.RawMessage(`{"user_id":7,"trace_id":"t-1"}`),
		}

		if err := publishEvent(context.Background(), pub, event); err != nil {
			t.Fatalf("publishEvent: %v", err)
		}
		if pub.routingKey != "todo.changed" {
			t.Errorf("expected routing key todo.changed, got %q", pub.routingKey)
		}
		if pub.traceID != "t-1" {
			t.Errorf("expected trace id t-1, got %q", pub.traceID)
		}
		raw, ok := pub.payload.(json.RawMessage)
		if !ok || string(raw) != `{"user_id":7,"trace_id":"t-1"}` {
			t.Errorf("expected payload forwarded verbatim, got %v", pub.payload)
		}
	})

	t.Run("wraps publisher error", func(t *testing.T) {
		boom := errors.New("boom")
		pub := &recordingPublisher{err: boom}
		err := publishEvent(context.Background(), pub, &Event{Payload: json.RawMessage(`{}`)})
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped boom, got %v", err)
		}
	})
}

func TestTraceIDFromPayload(t *testing.T) {
	if got := traceIDFromPayload(json.RawMessage(`not json`)); got != "" {
		t.Errorf("expected empty trace id for invalid payload, got %q", got)
	}
	if got := traceIDFromPayload(json.RawMessage(`{"trace_id":"x"}`)); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
}

func TestPurgeSentSkips(t *testing.T) {
	now := time.Now()

	// repo 为 nil：若没有跳过会直接 panic
	t.Run("retention disabled", func(t *testing.T) {
		d := NewDispatcher(nil, nil, zap.NewNop()).WithRetention(0)
		d.purgeSent(context.Background(), now)
		if !d.lastPurge.IsZero() {
			t.Errorf("expected no purge attempt, lastPurge=%v", d.lastPurge)
		}
	})

	t.Run("purged recently", func(t *testing.T) {
		d := NewDispatcher(nil, nil, zap.NewNop()).WithRetention(time.Hour)
		d.lastPurge = now.Add(-purgeEvery / 2)
		d.purgeSent(context.Background(), now)
		if !d.lastPurge.Equal(now.Add(-purgeEvery / 2)) {
			t.Errorf("expected lastPurge unchanged, got %v", d.lastPurge)
		}
	})
}
