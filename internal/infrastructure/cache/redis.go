package cache

import (
	"context"
	"fmt"
	"time"

	"referralpay/internal/config"
	"referralpay/internal/logging"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var RedisClient *redis.Client

func InitRedis(cfg *config.RedisConfig) *redis.Client {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.Logger.Fatal("连接 Redis 失败", zap.String("addr", addr), zap.Error(err))
	}

	RedisClient = client
	logging.Logger.Info("Redis 连接成功", zap.String("addr", addr))
	return client
}
