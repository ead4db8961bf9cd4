package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 钱包的所有资金变动都按用户串行：
//
//   佣金入账A: 获取锁 -> 查询余额=100 -> 入账50 -> 余额=150 -> 释放锁
//   提现扣款B: 获取锁失败，等待... -> 获取锁 -> 查询余额=150 -> 扣款 -> 释放锁
//
// 加锁：SET key value NX EX timeout
// 释放锁：Lua 脚本，value 匹配才删除，避免删掉别人的锁
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

const defaultExpiration = 30 * time.Second

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，锁已经过期或被其他持有者获取时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	deleted, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockExpired
	}
	return nil
}

func (l *DistributedLock) Key() string {
	return l.key
}

// ============================================================================
// 便捷函数
// ============================================================================

// NewWalletLock 钱包锁（按用户维度）
// 佣金入账、提现扣款、退款、对账都持有同一把锁，不同用户之间互不影响
func NewWalletLock(client *redis.Client, userID int64) *DistributedLock {
	key := fmt.Sprintf("wallet:lock:user:%d", userID)
	return NewDistributedLock(client, key, uuid.NewString(), defaultExpiration)
}

// NewCommissionLock 佣金分配锁（按幂等键维度），同一触发事件的重试串行执行
func NewCommissionLock(client *redis.Client, idempotencyKey string) *DistributedLock {
	key := fmt.Sprintf("commission:lock:key:%s", idempotencyKey)
	return NewDistributedLock(client, key, uuid.NewString(), defaultExpiration)
}

// NewFirstOrderLock 首单锁，同一用户的多个首单事件只会有一个发放佣金
func NewFirstOrderLock(client *redis.Client, userID int64) *DistributedLock {
	key := fmt.Sprintf("order:first:lock:user:%d", userID)
	return NewDistributedLock(client, key, uuid.NewString(), defaultExpiration)
}
