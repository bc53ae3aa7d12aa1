package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockNotAcquired 等待超时仍未拿到锁
var ErrLockNotAcquired = errors.New("lock not acquired")

const lockPollInterval = 50 * time.Millisecond

// 只删除自己持有的锁，避免过期后误删别人的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX 的跨进程互斥锁
type Locker struct {
	rdb    *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewLocker ttl 是锁的最长持有时间，wait 是获取锁的最长等待时间；logger may be nil.
func NewLocker(rdb *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *Locker {
	return &Locker{
		rdb:    rdb,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

// Lock 轮询获取 key 上的锁，返回释放函数
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *Locker) unlock(key, token string) {
	// 调用方的 ctx 可能已经取消
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && l.logger != nil {
		l.logger.Warn("Failed to release lock",
			zap.String("lock_key", key),
			zap.Error(err),
		)
	}
}
