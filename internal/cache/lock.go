package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 已持有的分布式锁
type Lock struct {
	key   string
	token string
}

// Locker 跨进程互斥，未启用 Redis 时恒成功
type Locker struct {
	ttl time.Duration
}

// NewLocker 创建锁管理器
func NewLocker(ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{ttl: ttl}
}

// TryLock 尝试加锁，已被他人持有时返回 nil
func (l *Locker) TryLock(ctx context.Context, name string) (*Lock, error) {
	lock := &Lock{key: buildKey("lock:" + name), token: uuid.NewString()}
	if !Enabled() {
		return lock, nil
	}
	ok, err := redisClient.SetNX(ctx, lock.key, lock.token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// Unlock 释放锁，仅删除自己持有的值
func (l *Locker) Unlock(ctx context.Context, lock *Lock) error {
	if lock == nil || !Enabled() {
		return nil
	}
	return unlockScript.Run(ctx, redisClient, []string{lock.key}, lock.token).Err()
}
