package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClaimer struct {
	batches []int
	calls   int
	err     error
}

func (f *fakeClaimer) ClaimDue(_ context.Context, _ time.Time, limit int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.calls >= len(f.batches) {
		f.calls++
		return 0, nil
	}
	n := f.batches[f.calls]
	f.calls++
	if n > limit {
		n = limit
	}
	return n, nil
}

func TestDispatcherTickDrainsFullBatches(t *testing.T) {
	claimer := &fakeClaimer{batches: []int{10, 10, 3}}
	d := NewDispatcher(claimer, zap.NewNop()).WithBatchSize(10)

	if got := d.tick(context.Background()); got != 23 {
		t.Errorf("expected 23 dispatched, got %d", got)
	}
	if claimer.calls != 3 {
		t.Errorf("expected 3 claims, got %d", claimer.calls)
	}
}

func TestDispatcherTickStopsOnError(t *testing.T) {
	claimer := &fakeClaimer{err: errors.New("db down")}
	d := NewDispatcher(claimer, zap.NewNop())

	if got := d.tick(context.Background()); got != 0 {
		t.Errorf("expected 0 dispatched, got %d", got)
	}
}

func TestDispatcherStartStopsOnCancel(t *testing.T) {
	d := NewDispatcher(&fakeClaimer{}, zap.NewNop()).WithInterval(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
