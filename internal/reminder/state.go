package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eztodo/pkg/util"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StateKeyPrefix 每个用户的提醒状态存放在 "<prefix>:<user_id>"
const StateKeyPrefix = "@todo-notification-records"

// Record 记录某个 todo 当前挂起的提醒，DueDate 是生成这些提醒时的截止时间
type Record struct {
	DueDate         string   `json:"dueDate"`
	NotificationIDs []string `json:"notificationIds"`
}

// State 以 todo ID 为键
type State map[string]Record

// StateStore 是提醒状态的键值存储；键不存在时返回 (nil, nil)。
// Lock 在所有进程间互斥同一个键的读改写，返回释放函数。
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Lock(ctx context.Context, key string) (func(), error)
}

// StateKey 返回用户的状态键
func StateKey(userID int) string {
	return fmt.Sprintf("%s:%d", StateKeyPrefix, userID)
}

func decodeState(data []byte) (State, error) {
	state := State{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

const (
	stateLockTTL  = 30 * time.Second
	stateLockWait = 10 * time.Second
)

// RedisStateStore 把状态序列化后整体写入一个 Redis 键
type RedisStateStore struct {
	rdb    *redis.Client
	locker *util.Locker
}

func NewRedisStateStore(rdb *redis.Client, logger *zap.Logger) *RedisStateStore {
	return &RedisStateStore{
		rdb:    rdb,
		locker: util.NewLocker(rdb, stateLockTTL, stateLockWait, logger),
	}
}

func (s *RedisStateStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (s *RedisStateStore) Save(ctx context.Context, key string, data []byte) error {
	return s.rdb.Set(ctx, key, data, 0).Err()
}

// Lock 使用 "<key>:lock" 作为锁键
func (s *RedisStateStore) Lock(ctx context.Context, key string) (func(), error) {
	return s.locker.Lock(ctx, key+":lock")
}
