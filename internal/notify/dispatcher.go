package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DueClaimer 领取已到期的提醒并登记 reminder.due 事件
type DueClaimer interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// Dispatcher 周期性扫描到期提醒
type Dispatcher struct {
	claimer   DueClaimer
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewDispatcher(claimer DueClaimer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		claimer:   claimer,
		logger:    logger,
		interval:  5 * time.Second,
		batchSize: 100,
		now:       time.Now,
	}
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize 设置每次领取的上限
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Start 阻塞运行直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting reminder dispatcher",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Reminder dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick 领取一批到期提醒；一批满额时继续领取，直到清空
func (d *Dispatcher) tick(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := d.claimer.ClaimDue(ctx, d.now(), d.batchSize)
		if err != nil {
			d.logger.Error("Failed to claim due reminders", zap.Error(err))
			return total
		}
		total += n
		if n < d.batchSize {
			break
		}
	}
	if total > 0 {
		d.logger.Info("Due reminders dispatched", zap.Int("count", total))
	}
	return total
}
