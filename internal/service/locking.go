package service

import (
	"context"
	"fmt"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/infrastructure/lock"
	"referralpay/internal/logging"

	"go.uber.org/zap"
)

// withLock 持有分布式锁执行 fn，获取失败返回 ErrSystemBusy
func withLock(ctx context.Context, l *lock.DistributedLock, cfg *config.Config, fn func() error) error {
	interval := time.Duration(cfg.Business.LockRetryIntervalMs) * time.Millisecond
	if err := l.Lock(ctx, interval, cfg.Business.LockMaxRetries); err != nil {
		return fmt.Errorf("%w: %w", ErrSystemBusy, err)
	}
	defer func() {
		// 释放锁不跟随请求 ctx，请求取消后也要释放
		if err := l.Unlock(context.Background()); err != nil {
			logging.Logger.Warn("释放分布式锁失败", zap.String("key", l.Key()), zap.Error(err))
		}
	}()
	return fn()
}
